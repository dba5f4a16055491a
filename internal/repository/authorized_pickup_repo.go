package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
)

// AuthorizedPickupRepository handles database operations for standing authorized pickups
type AuthorizedPickupRepository struct {
	db database.DBTX
}

// NewAuthorizedPickupRepository creates a new authorized pickup repository
func NewAuthorizedPickupRepository(db database.DBTX) *AuthorizedPickupRepository {
	return &AuthorizedPickupRepository{db: db}
}

// WithTx returns a repository bound to q
func (r *AuthorizedPickupRepository) WithTx(q database.DBTX) *AuthorizedPickupRepository {
	return &AuthorizedPickupRepository{db: q}
}

const authorizedPickupColumns = `id, child_id, name, relationship, pin_hash, is_active, created_at, updated_at`

func scanAuthorizedPickup(s rowScanner) (*models.AuthorizedPickup, error) {
	p := &models.AuthorizedPickup{}
	err := s.Scan(&p.ID, &p.ChildID, &p.Name, &p.Relationship, &p.PINHash, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Create inserts a new active authorized pickup
func (r *AuthorizedPickupRepository) Create(ctx context.Context, p models.AuthorizedPickup) (*models.AuthorizedPickup, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO authorized_pickups (child_id, name, relationship, pin_hash, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, p.ChildID, p.Name, p.Relationship, p.PINHash, true, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorized pickup: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID retrieves an authorized pickup by ID
func (r *AuthorizedPickupRepository) GetByID(ctx context.Context, id int64) (*models.AuthorizedPickup, error) {
	p, err := scanAuthorizedPickup(r.db.QueryRowContext(ctx, "SELECT "+authorizedPickupColumns+" FROM authorized_pickups WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get authorized pickup: %w", err)
	}
	return p, nil
}

// Deactivate withdraws an authorized pickup without deleting it
func (r *AuthorizedPickupRepository) Deactivate(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE authorized_pickups SET is_active = ?, updated_at = ? WHERE id = ? AND is_active = ?", false, time.Now().UTC(), id, true)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate authorized pickup: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to deactivate authorized pickup: %w", err)
	}
	return n == 1, nil
}

// ListForChild retrieves the authorized pickups of a child
func (r *AuthorizedPickupRepository) ListForChild(ctx context.Context, childID int64, activeOnly bool) ([]models.AuthorizedPickup, error) {
	query := "SELECT " + authorizedPickupColumns + " FROM authorized_pickups WHERE child_id = ?"
	args := []any{childID}
	if activeOnly {
		query += " AND is_active = ?"
		args = append(args, true)
	}
	query += " ORDER BY name ASC, id ASC"
	return r.list(ctx, query, args...)
}

// List retrieves every authorized pickup
func (r *AuthorizedPickupRepository) List(ctx context.Context) ([]models.AuthorizedPickup, error) {
	return r.list(ctx, "SELECT "+authorizedPickupColumns+" FROM authorized_pickups ORDER BY id ASC")
}

func (r *AuthorizedPickupRepository) list(ctx context.Context, query string, args ...any) ([]models.AuthorizedPickup, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query authorized pickups: %w", err)
	}
	defer rows.Close()

	var pickups []models.AuthorizedPickup
	for rows.Next() {
		p, err := scanAuthorizedPickup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan authorized pickup: %w", err)
		}
		pickups = append(pickups, *p)
	}
	return pickups, rows.Err()
}
