package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
)

// ClassroomRepository handles database operations for classrooms
type ClassroomRepository struct {
	db database.DBTX
}

// NewClassroomRepository creates a new classroom repository
func NewClassroomRepository(db database.DBTX) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// WithTx returns a repository bound to q
func (r *ClassroomRepository) WithTx(q database.DBTX) *ClassroomRepository {
	return &ClassroomRepository{db: q}
}

const classroomColumns = `id, name, max_capacity, ratio_children_per_adult, min_age_months, max_age_months, is_active, created_at, updated_at`

func scanClassroom(s rowScanner) (*models.Classroom, error) {
	c := &models.Classroom{}
	err := s.Scan(
		&c.ID,
		&c.Name,
		&c.MaxCapacity,
		&c.RatioChildrenPerAdult,
		&c.MinAgeMonths,
		&c.MaxAgeMonths,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

// Upsert inserts a classroom or updates the one with the same name
func (r *ClassroomRepository) Upsert(ctx context.Context, c models.Classroom) (*models.Classroom, error) {
	existing, err := r.GetByName(ctx, c.Name)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing != nil {
		query := `
			UPDATE classrooms
			SET max_capacity = ?, ratio_children_per_adult = ?, min_age_months = ?, max_age_months = ?, is_active = ?, updated_at = ?
			WHERE id = ?
		`
		if _, err := r.db.ExecContext(ctx, query, c.MaxCapacity, c.RatioChildrenPerAdult, c.MinAgeMonths, c.MaxAgeMonths, c.IsActive, now, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to update classroom: %w", err)
		}
		return r.GetByID(ctx, existing.ID)
	}

	query := `
		INSERT INTO classrooms (name, max_capacity, ratio_children_per_adult, min_age_months, max_age_months, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, c.Name, c.MaxCapacity, c.RatioChildrenPerAdult, c.MinAgeMonths, c.MaxAgeMonths, c.IsActive, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create classroom: %w", err)
	}
	return r.GetByID(ctx, id)
}

// SetActive opens or closes a classroom for check-ins
func (r *ClassroomRepository) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.db.ExecContext(ctx, "UPDATE classrooms SET is_active = ?, updated_at = ? WHERE id = ?", active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update classroom: %w", err)
	}
	return nil
}

// GetByID retrieves a classroom by ID
func (r *ClassroomRepository) GetByID(ctx context.Context, id int64) (*models.Classroom, error) {
	query := "SELECT " + classroomColumns + " FROM classrooms WHERE id = ?"
	c, err := scanClassroom(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get classroom: %w", err)
	}
	return c, nil
}

// GetByName retrieves a classroom by its unique name
func (r *ClassroomRepository) GetByName(ctx context.Context, name string) (*models.Classroom, error) {
	query := "SELECT " + classroomColumns + " FROM classrooms WHERE name = ?"
	c, err := scanClassroom(r.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get classroom: %w", err)
	}
	return c, nil
}

// List retrieves all classrooms ordered by name
func (r *ClassroomRepository) List(ctx context.Context) ([]models.Classroom, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+classroomColumns+" FROM classrooms ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query classrooms: %w", err)
	}
	defer rows.Close()

	var classrooms []models.Classroom
	for rows.Next() {
		c, err := scanClassroom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan classroom: %w", err)
		}
		classrooms = append(classrooms, *c)
	}
	return classrooms, rows.Err()
}
