package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
)

// PickupAuthorizationRepository handles database operations for temporary pickup grants
type PickupAuthorizationRepository struct {
	db database.DBTX
}

// NewPickupAuthorizationRepository creates a new pickup authorization repository
func NewPickupAuthorizationRepository(db database.DBTX) *PickupAuthorizationRepository {
	return &PickupAuthorizationRepository{db: db}
}

// WithTx returns a repository bound to q
func (r *PickupAuthorizationRepository) WithTx(q database.DBTX) *PickupAuthorizationRepository {
	return &PickupAuthorizationRepository{db: q}
}

const grantColumns = `
	id, child_id, created_by_guardian_id, authorized_name, relationship, document, authorization_type,
	valid_from, valid_until, pin_hash, status, leader_approval_required, approved_by, approved_at,
	cancelled_by, cancelled_at, used_at, used_by_custody_record_id, created_at
`

func scanGrant(s rowScanner) (*models.PickupAuthorization, error) {
	g := &models.PickupAuthorization{}
	var (
		validUntil, approvedAt, cancelledAt, usedAt sql.NullTime
		approvedBy, cancelledBy                      sql.NullString
		usedBy                                       sql.NullInt64
		authType, status                             string
	)
	err := s.Scan(
		&g.ID,
		&g.ChildID,
		&g.CreatedByGuardianID,
		&g.AuthorizedName,
		&g.Relationship,
		&g.Document,
		&authType,
		&g.ValidFrom,
		&validUntil,
		&g.PINHash,
		&status,
		&g.LeaderApprovalRequired,
		&approvedBy,
		&approvedAt,
		&cancelledBy,
		&cancelledAt,
		&usedAt,
		&usedBy,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Type = models.AuthorizationType(authType)
	g.Status = models.GrantStatus(status)
	g.ValidFrom = g.ValidFrom.UTC()
	g.ValidUntil = timePtr(validUntil)
	g.ApprovedBy = approvedBy.String
	g.ApprovedAt = timePtr(approvedAt)
	g.CancelledBy = cancelledBy.String
	g.CancelledAt = timePtr(cancelledAt)
	g.UsedAt = timePtr(usedAt)
	g.UsedByCustodyRecordID = int64Ptr(usedBy)
	return g, nil
}

// Create inserts a new grant
func (r *PickupAuthorizationRepository) Create(ctx context.Context, g models.PickupAuthorization) (*models.PickupAuthorization, error) {
	query := `
		INSERT INTO pickup_authorizations (
			child_id, created_by_guardian_id, authorized_name, relationship, document, authorization_type,
			valid_from, valid_until, pin_hash, status, leader_approval_required, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		g.ChildID, g.CreatedByGuardianID, g.AuthorizedName, g.Relationship, g.Document, string(g.Type),
		g.ValidFrom.UTC(), nullTime(g.ValidUntil), g.PINHash, string(g.Status), g.LeaderApprovalRequired, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create pickup authorization: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID retrieves a grant by ID
func (r *PickupAuthorizationRepository) GetByID(ctx context.Context, id int64) (*models.PickupAuthorization, error) {
	g, err := scanGrant(r.db.QueryRowContext(ctx, "SELECT "+grantColumns+" FROM pickup_authorizations WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pickup authorization: %w", err)
	}
	return g, nil
}

// ListForChild retrieves the grants of a child, newest first. With no
// statuses given every grant is returned.
func (r *PickupAuthorizationRepository) ListForChild(ctx context.Context, childID int64, statuses ...models.GrantStatus) ([]models.PickupAuthorization, error) {
	query := "SELECT " + grantColumns + " FROM pickup_authorizations WHERE child_id = ?"
	args := []any{childID}
	query, args = withStatuses(query, args, statuses)
	query += " ORDER BY created_at DESC, id DESC"
	return r.list(ctx, query, args...)
}

// ListByStatus retrieves grants in any of the given statuses
func (r *PickupAuthorizationRepository) ListByStatus(ctx context.Context, statuses ...models.GrantStatus) ([]models.PickupAuthorization, error) {
	query := "SELECT " + grantColumns + " FROM pickup_authorizations WHERE 1 = 1"
	query, args := withStatuses(query, nil, statuses)
	query += " ORDER BY id ASC"
	return r.list(ctx, query, args...)
}

func withStatuses(query string, args []any, statuses []models.GrantStatus) (string, []any) {
	if len(statuses) == 0 {
		return query, args
	}
	query += " AND status IN (" + placeholders(len(statuses)) + ")"
	for _, s := range statuses {
		args = append(args, string(s))
	}
	return query, args
}

func (r *PickupAuthorizationRepository) list(ctx context.Context, query string, args ...any) ([]models.PickupAuthorization, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pickup authorizations: %w", err)
	}
	defer rows.Close()

	var grants []models.PickupAuthorization
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pickup authorization: %w", err)
		}
		grants = append(grants, *g)
	}
	return grants, rows.Err()
}

// MarkUsed consumes a grant for a custody record. It reports false when the
// grant was no longer approved or active.
func (r *PickupAuthorizationRepository) MarkUsed(ctx context.Context, id int64, at time.Time, recordID int64) (bool, error) {
	query := `
		UPDATE pickup_authorizations
		SET status = ?, used_at = ?, used_by_custody_record_id = ?
		WHERE id = ? AND status IN (?, ?)
	`
	return r.exec(ctx, query, string(models.GrantUsed), at.UTC(), recordID, id, string(models.GrantApproved), string(models.GrantActive))
}

// Approve moves a pending grant to approved
func (r *PickupAuthorizationRepository) Approve(ctx context.Context, id int64, by string, at time.Time) (bool, error) {
	query := `
		UPDATE pickup_authorizations
		SET status = ?, approved_by = ?, approved_at = ?
		WHERE id = ? AND status = ?
	`
	return r.exec(ctx, query, string(models.GrantApproved), by, at.UTC(), id, string(models.GrantPending))
}

// Cancel moves a non-terminal grant to cancelled
func (r *PickupAuthorizationRepository) Cancel(ctx context.Context, id int64, by string, at time.Time) (bool, error) {
	query := `
		UPDATE pickup_authorizations
		SET status = ?, cancelled_by = ?, cancelled_at = ?
		WHERE id = ? AND status IN (?, ?, ?)
	`
	return r.exec(ctx, query, string(models.GrantCancelled), by, at.UTC(), id,
		string(models.GrantPending), string(models.GrantApproved), string(models.GrantActive))
}

// Expire moves a non-terminal grant to expired
func (r *PickupAuthorizationRepository) Expire(ctx context.Context, id int64) (bool, error) {
	query := "UPDATE pickup_authorizations SET status = ? WHERE id = ? AND status IN (?, ?, ?)"
	return r.exec(ctx, query, string(models.GrantExpired), id,
		string(models.GrantPending), string(models.GrantApproved), string(models.GrantActive))
}

func (r *PickupAuthorizationRepository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update pickup authorization: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update pickup authorization: %w", err)
	}
	return n == 1, nil
}
