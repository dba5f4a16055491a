package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
)

// ChildRepository handles database operations for children
type ChildRepository struct {
	db database.DBTX
}

// NewChildRepository creates a new child repository
func NewChildRepository(db database.DBTX) *ChildRepository {
	return &ChildRepository{db: db}
}

// WithTx returns a repository bound to q
func (r *ChildRepository) WithTx(q database.DBTX) *ChildRepository {
	return &ChildRepository{db: q}
}

const childSelect = `
	SELECT c.id, c.name, c.birth_date, c.classroom_id, cl.name, c.allergies, c.medical_notes,
	       c.emergency_contact, c.emergency_phone, c.created_at, c.updated_at
	FROM children c
	JOIN classrooms cl ON cl.id = c.classroom_id
`

func scanChild(s rowScanner) (*models.Child, error) {
	child := &models.Child{}
	var birth sql.NullTime
	err := s.Scan(
		&child.ID,
		&child.Name,
		&birth,
		&child.ClassroomID,
		&child.Classroom,
		&child.Allergies,
		&child.MedicalNotes,
		&child.EmergencyContact,
		&child.EmergencyPhone,
		&child.CreatedAt,
		&child.UpdatedAt,
	)
	child.BirthDate = timePtr(birth)
	return child, err
}

// Create inserts a new child
func (r *ChildRepository) Create(ctx context.Context, child models.Child) (*models.Child, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO children (name, birth_date, classroom_id, allergies, medical_notes, emergency_contact, emergency_phone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		child.Name, nullTime(child.BirthDate), child.ClassroomID, child.Allergies, child.MedicalNotes,
		child.EmergencyContact, child.EmergencyPhone, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create child: %w", err)
	}
	return r.GetByID(ctx, id)
}

// Update changes a child's profile and classroom assignment
func (r *ChildRepository) Update(ctx context.Context, child models.Child) error {
	query := `
		UPDATE children
		SET name = ?, birth_date = ?, classroom_id = ?, allergies = ?, medical_notes = ?,
		    emergency_contact = ?, emergency_phone = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		child.Name, nullTime(child.BirthDate), child.ClassroomID, child.Allergies, child.MedicalNotes,
		child.EmergencyContact, child.EmergencyPhone, time.Now().UTC(), child.ID)
	if err != nil {
		return fmt.Errorf("failed to update child: %w", err)
	}
	return nil
}

// GetByID retrieves a child by ID
func (r *ChildRepository) GetByID(ctx context.Context, id int64) (*models.Child, error) {
	child, err := scanChild(r.db.QueryRowContext(ctx, childSelect+" WHERE c.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child: %w", err)
	}
	return child, nil
}

// List retrieves children, optionally restricted to one classroom
func (r *ChildRepository) List(ctx context.Context, classroomID int64) ([]models.Child, error) {
	query := childSelect
	var args []any
	if classroomID > 0 {
		query += " WHERE c.classroom_id = ?"
		args = append(args, classroomID)
	}
	query += " ORDER BY c.name ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()

	var children []models.Child
	for rows.Next() {
		child, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		children = append(children, *child)
	}
	return children, rows.Err()
}
