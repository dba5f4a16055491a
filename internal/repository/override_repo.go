package repository

import (
	"context"
	"database/sql"
	"fmt"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
)

// OverrideRepository stores leader emergency overrides. Rows are insert-only.
type OverrideRepository struct {
	db database.DBTX
}

// NewOverrideRepository creates a new override repository
func NewOverrideRepository(db database.DBTX) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// WithTx returns a repository bound to q
func (r *OverrideRepository) WithTx(q database.DBTX) *OverrideRepository {
	return &OverrideRepository{db: q}
}

// Create inserts an override
func (r *OverrideRepository) Create(ctx context.Context, o models.LeaderOverride) (*models.LeaderOverride, error) {
	query := `
		INSERT INTO leader_overrides (custody_record_id, leader_actor_id, reason, pickup_person_name, pickup_person_document, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	o.CreatedAt = o.CreatedAt.UTC()
	id, err := r.db.ExecReturningID(ctx, query, o.CustodyRecordID, o.LeaderActorID, o.Reason, o.PickupPersonName, o.PickupPersonDocument, o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create leader override: %w", err)
	}
	o.ID = id
	return &o, nil
}

// GetByCustodyRecord retrieves the override that released a record
func (r *OverrideRepository) GetByCustodyRecord(ctx context.Context, recordID int64) (*models.LeaderOverride, error) {
	query := `
		SELECT id, custody_record_id, leader_actor_id, reason, pickup_person_name, pickup_person_document, created_at
		FROM leader_overrides
		WHERE custody_record_id = ?
	`
	o := &models.LeaderOverride{}
	err := r.db.QueryRowContext(ctx, query, recordID).Scan(
		&o.ID, &o.CustodyRecordID, &o.LeaderActorID, &o.Reason, &o.PickupPersonName, &o.PickupPersonDocument, &o.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leader override: %w", err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}
