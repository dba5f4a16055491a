package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
)

// AuditRepository persists audit events. Rows are insert-only.
type AuditRepository struct {
	db database.DBTX
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db database.DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilter narrows an audit listing. Zero fields are ignored.
type AuditFilter struct {
	ChildID         int64
	CustodyRecordID int64
	EventType       string
	Limit           int
}

// Create inserts an audit event
func (r *AuditRepository) Create(ctx context.Context, e models.AuditEvent) (int64, error) {
	details := e.Details
	if details == nil {
		details = map[string]string{}
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return 0, fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_events (event_type, child_id, custody_record_id, actor_id, occurred_at, details)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, e.EventType, e.ChildID, nullInt64(e.CustodyRecordID), e.ActorID, e.OccurredAt.UTC(), string(encoded))
	if err != nil {
		return 0, fmt.Errorf("failed to create audit event: %w", err)
	}
	return id, nil
}

// List retrieves audit events matching f, newest first
func (r *AuditRepository) List(ctx context.Context, f AuditFilter) ([]models.AuditEvent, error) {
	query := "SELECT id, event_type, child_id, custody_record_id, actor_id, occurred_at, details FROM audit_events WHERE 1 = 1"
	var args []any
	if f.ChildID > 0 {
		query += " AND child_id = ?"
		args = append(args, f.ChildID)
	}
	if f.CustodyRecordID > 0 {
		query += " AND custody_record_id = ?"
		args = append(args, f.CustodyRecordID)
	}
	if f.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, f.EventType)
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var (
			e       models.AuditEvent
			record  sql.NullInt64
			details string
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.ChildID, &record, &e.ActorID, &e.OccurredAt, &details); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.CustodyRecordID = int64Ptr(record)
		e.OccurredAt = e.OccurredAt.UTC()
		if details != "" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
