package repository

import (
	"context"
	"fmt"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
)

// AttemptRepository records checkout attempts against custody records
type AttemptRepository struct {
	db database.DBTX
}

// NewAttemptRepository creates a new attempt repository
func NewAttemptRepository(db database.DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// WithTx returns a repository bound to q
func (r *AttemptRepository) WithTx(q database.DBTX) *AttemptRepository {
	return &AttemptRepository{db: q}
}

// Create inserts an attempt
func (r *AttemptRepository) Create(ctx context.Context, a models.PickupAttempt) error {
	query := `
		INSERT INTO pickup_attempts (custody_record_id, candidate_id, actor_id, attempted_at, succeeded, failure_reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, a.CustodyRecordID, a.CandidateID, a.ActorID, a.AttemptedAt.UTC(), a.Succeeded, a.FailureReason); err != nil {
		return fmt.Errorf("failed to record pickup attempt: %w", err)
	}
	return nil
}

// ListForRecord retrieves the attempts made against a custody record, oldest first
func (r *AttemptRepository) ListForRecord(ctx context.Context, recordID int64) ([]models.PickupAttempt, error) {
	query := `
		SELECT id, custody_record_id, candidate_id, actor_id, attempted_at, succeeded, failure_reason
		FROM pickup_attempts
		WHERE custody_record_id = ?
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pickup attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.PickupAttempt
	for rows.Next() {
		var a models.PickupAttempt
		if err := rows.Scan(&a.ID, &a.CustodyRecordID, &a.CandidateID, &a.ActorID, &a.AttemptedAt, &a.Succeeded, &a.FailureReason); err != nil {
			return nil, fmt.Errorf("failed to scan pickup attempt: %w", err)
		}
		a.AttemptedAt = a.AttemptedAt.UTC()
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
