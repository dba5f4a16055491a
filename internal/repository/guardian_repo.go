package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
)

// GuardianRepository handles database operations for guardians and their links to children
type GuardianRepository struct {
	db database.DBTX
}

// NewGuardianRepository creates a new guardian repository
func NewGuardianRepository(db database.DBTX) *GuardianRepository {
	return &GuardianRepository{db: db}
}

// WithTx returns a repository bound to q
func (r *GuardianRepository) WithTx(q database.DBTX) *GuardianRepository {
	return &GuardianRepository{db: q}
}

// Create inserts a new guardian. An empty PINHash stores no PIN.
func (r *GuardianRepository) Create(ctx context.Context, g models.Guardian) (*models.Guardian, error) {
	now := time.Now().UTC()
	query := "INSERT INTO guardians (name, phone, email, pin_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
	id, err := r.db.ExecReturningID(ctx, query, g.Name, g.Phone, g.Email, nullString(g.PINHash), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create guardian: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID retrieves a guardian by ID
func (r *GuardianRepository) GetByID(ctx context.Context, id int64) (*models.Guardian, error) {
	query := "SELECT id, name, phone, email, pin_hash, created_at, updated_at FROM guardians WHERE id = ?"
	g := &models.Guardian{}
	var pin sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name, &g.Phone, &g.Email, &pin, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guardian: %w", err)
	}
	g.PINHash = pin.String
	return g, nil
}

// SetPINHash replaces or clears (empty hash) a guardian's PIN
func (r *GuardianRepository) SetPINHash(ctx context.Context, id int64, hash string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE guardians SET pin_hash = ?, updated_at = ? WHERE id = ?", nullString(hash), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update guardian PIN: %w", err)
	}
	return nil
}

// Link attaches a guardian to a child
func (r *GuardianRepository) Link(ctx context.Context, link models.ChildGuardian) (*models.ChildGuardian, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO child_guardians (child_id, guardian_id, relationship, is_primary, can_pickup, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, link.ChildID, link.GuardianID, link.Relationship, link.IsPrimary, link.CanPickup, now)
	if err != nil {
		return nil, fmt.Errorf("failed to link guardian: %w", err)
	}
	link.ID = id
	link.CreatedAt = now
	return &link, nil
}

// UpdateLink changes the relationship flags of an existing link
func (r *GuardianRepository) UpdateLink(ctx context.Context, link models.ChildGuardian) error {
	query := "UPDATE child_guardians SET relationship = ?, is_primary = ?, can_pickup = ? WHERE child_id = ? AND guardian_id = ?"
	result, err := r.db.ExecContext(ctx, query, link.Relationship, link.IsPrimary, link.CanPickup, link.ChildID, link.GuardianID)
	if err != nil {
		return fmt.Errorf("failed to update guardian link: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update guardian link: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetLink retrieves the link between a child and a guardian
func (r *GuardianRepository) GetLink(ctx context.Context, childID, guardianID int64) (*models.ChildGuardian, error) {
	query := `
		SELECT id, child_id, guardian_id, relationship, is_primary, can_pickup, created_at
		FROM child_guardians
		WHERE child_id = ? AND guardian_id = ?
	`
	link := &models.ChildGuardian{}
	err := r.db.QueryRowContext(ctx, query, childID, guardianID).Scan(
		&link.ID, &link.ChildID, &link.GuardianID, &link.Relationship, &link.IsPrimary, &link.CanPickup, &link.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guardian link: %w", err)
	}
	return link, nil
}

// ListForChild retrieves the guardians linked to a child, primary guardians first.
// With pickupOnly set, guardians not allowed to collect the child are left out.
func (r *GuardianRepository) ListForChild(ctx context.Context, childID int64, pickupOnly bool) ([]models.LinkedGuardian, error) {
	query := `
		SELECT g.id, g.name, g.phone, g.email, g.pin_hash, g.created_at, g.updated_at,
		       cg.id, cg.child_id, cg.guardian_id, cg.relationship, cg.is_primary, cg.can_pickup, cg.created_at
		FROM child_guardians cg
		JOIN guardians g ON g.id = cg.guardian_id
		WHERE cg.child_id = ?
	`
	args := []any{childID}
	if pickupOnly {
		query += " AND cg.can_pickup = ?"
		args = append(args, true)
	}
	query += " ORDER BY cg.is_primary DESC, g.name ASC, g.id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query guardians: %w", err)
	}
	defer rows.Close()

	var guardians []models.LinkedGuardian
	for rows.Next() {
		var lg models.LinkedGuardian
		var pin sql.NullString
		if err := rows.Scan(
			&lg.Guardian.ID, &lg.Guardian.Name, &lg.Guardian.Phone, &lg.Guardian.Email, &pin,
			&lg.Guardian.CreatedAt, &lg.Guardian.UpdatedAt,
			&lg.Link.ID, &lg.Link.ChildID, &lg.Link.GuardianID, &lg.Link.Relationship,
			&lg.Link.IsPrimary, &lg.Link.CanPickup, &lg.Link.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan guardian: %w", err)
		}
		lg.Guardian.PINHash = pin.String
		guardians = append(guardians, lg)
	}
	return guardians, rows.Err()
}

// ListLinks retrieves every child-guardian link
func (r *GuardianRepository) ListLinks(ctx context.Context) ([]models.ChildGuardian, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, child_id, guardian_id, relationship, is_primary, can_pickup, created_at FROM child_guardians ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query guardian links: %w", err)
	}
	defer rows.Close()

	var links []models.ChildGuardian
	for rows.Next() {
		var l models.ChildGuardian
		if err := rows.Scan(&l.ID, &l.ChildID, &l.GuardianID, &l.Relationship, &l.IsPrimary, &l.CanPickup, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan guardian link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// List retrieves every guardian
func (r *GuardianRepository) List(ctx context.Context) ([]models.Guardian, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, phone, email, pin_hash, created_at, updated_at FROM guardians ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query guardians: %w", err)
	}
	defer rows.Close()

	var guardians []models.Guardian
	for rows.Next() {
		var g models.Guardian
		var pin sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &g.Phone, &g.Email, &pin, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan guardian: %w", err)
		}
		g.PINHash = pin.String
		guardians = append(guardians, g)
	}
	return guardians, rows.Err()
}
