package repository

import (
	"context"
	"database/sql"
	"fmt"

	"kidcheck/internal/database"
	"kidcheck/internal/models"
)

// CustodyRepository handles database operations for custody records.
// Records are never deleted; Close is the only mutation after Create.
type CustodyRepository struct {
	db database.DBTX
}

// NewCustodyRepository creates a new custody repository
func NewCustodyRepository(db database.DBTX) *CustodyRepository {
	return &CustodyRepository{db: db}
}

// WithTx returns a repository bound to q
func (r *CustodyRepository) WithTx(q database.DBTX) *CustodyRepository {
	return &CustodyRepository{db: q}
}

const custodyColumns = `
	id, child_id, event_date, event_name, classroom, custody_token, label_number,
	checked_in_at, checked_in_by, checked_out_at, checked_out_by, pickup_person_name, pickup_method
`

func scanCustody(s rowScanner) (*models.CustodyRecord, error) {
	rec := &models.CustodyRecord{}
	var (
		outAt                   sql.NullTime
		outBy, pickupName, meth sql.NullString
	)
	err := s.Scan(
		&rec.ID,
		&rec.ChildID,
		&rec.EventDate,
		&rec.EventName,
		&rec.Classroom,
		&rec.CustodyToken,
		&rec.LabelNumber,
		&rec.CheckedInAt,
		&rec.CheckedInBy,
		&outAt,
		&outBy,
		&pickupName,
		&meth,
	)
	if err != nil {
		return nil, err
	}
	rec.CheckedInAt = rec.CheckedInAt.UTC()
	rec.CheckedOutAt = timePtr(outAt)
	rec.CheckedOutBy = outBy.String
	rec.PickupPersonName = pickupName.String
	rec.PickupMethod = models.PickupMethod(meth.String)
	return rec, nil
}

func (r *CustodyRepository) getOne(ctx context.Context, where string, args ...any) (*models.CustodyRecord, error) {
	rec, err := scanCustody(r.db.QueryRowContext(ctx, "SELECT "+custodyColumns+" FROM custody_records WHERE "+where, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get custody record: %w", err)
	}
	return rec, nil
}

// Create inserts a new open custody record
func (r *CustodyRepository) Create(ctx context.Context, rec models.CustodyRecord) (*models.CustodyRecord, error) {
	query := `
		INSERT INTO custody_records (child_id, event_date, event_name, classroom, custody_token, label_number, checked_in_at, checked_in_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	rec.CheckedInAt = rec.CheckedInAt.UTC()
	id, err := r.db.ExecReturningID(ctx, query,
		rec.ChildID, rec.EventDate, rec.EventName, rec.Classroom, rec.CustodyToken, rec.LabelNumber, rec.CheckedInAt, rec.CheckedInBy)
	if err != nil {
		return nil, fmt.Errorf("failed to create custody record: %w", err)
	}
	rec.ID = id
	return &rec, nil
}

// GetByID retrieves a custody record by ID, open or closed
func (r *CustodyRepository) GetByID(ctx context.Context, id int64) (*models.CustodyRecord, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetOpenByToken retrieves the open record carrying a custody token
func (r *CustodyRepository) GetOpenByToken(ctx context.Context, token string) (*models.CustodyRecord, error) {
	return r.getOne(ctx, "custody_token = ? AND checked_out_at IS NULL", token)
}

// GetOpenByChild retrieves a child's open record, if any
func (r *CustodyRepository) GetOpenByChild(ctx context.Context, childID int64) (*models.CustodyRecord, error) {
	return r.getOne(ctx, "child_id = ? AND checked_out_at IS NULL", childID)
}

// GetOpenByLabel retrieves the open record printed with a label number on a date
func (r *CustodyRepository) GetOpenByLabel(ctx context.Context, eventDate string, label int) (*models.CustodyRecord, error) {
	return r.getOne(ctx, "event_date = ? AND label_number = ? AND checked_out_at IS NULL", eventDate, label)
}

// CountOpen counts open records for a classroom on a date
func (r *CustodyRepository) CountOpen(ctx context.Context, classroom, eventDate string) (int, error) {
	query := "SELECT COUNT(*) FROM custody_records WHERE classroom = ? AND event_date = ? AND checked_out_at IS NULL"
	var count int
	if err := r.db.QueryRowContext(ctx, query, classroom, eventDate).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open custody records: %w", err)
	}
	return count, nil
}

// CountOpenByClassroom counts open records per classroom on a date
func (r *CustodyRepository) CountOpenByClassroom(ctx context.Context, eventDate string) (map[string]int, error) {
	query := `
		SELECT classroom, COUNT(*)
		FROM custody_records
		WHERE event_date = ? AND checked_out_at IS NULL
		GROUP BY classroom
	`
	rows, err := r.db.QueryContext(ctx, query, eventDate)
	if err != nil {
		return nil, fmt.Errorf("failed to count open custody records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var classroom string
		var count int
		if err := rows.Scan(&classroom, &count); err != nil {
			return nil, fmt.Errorf("failed to scan occupancy: %w", err)
		}
		counts[classroom] = count
	}
	return counts, rows.Err()
}

// NextLabelNumber returns the next free label number for a date
func (r *CustodyRepository) NextLabelNumber(ctx context.Context, eventDate string) (int, error) {
	var next int
	query := "SELECT COALESCE(MAX(label_number), 0) + 1 FROM custody_records WHERE event_date = ?"
	if err := r.db.QueryRowContext(ctx, query, eventDate).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to compute label number: %w", err)
	}
	return next, nil
}

// ListOpen retrieves open records for a date, optionally for one classroom
func (r *CustodyRepository) ListOpen(ctx context.Context, eventDate, classroom string) ([]models.CustodyRecord, error) {
	query := "SELECT " + custodyColumns + " FROM custody_records WHERE event_date = ? AND checked_out_at IS NULL"
	args := []any{eventDate}
	if classroom != "" {
		query += " AND classroom = ?"
		args = append(args, classroom)
	}
	query += " ORDER BY label_number ASC"
	return r.list(ctx, query, args...)
}

// ListByChild retrieves a child's custody history, newest first
func (r *CustodyRepository) ListByChild(ctx context.Context, childID int64) ([]models.CustodyRecord, error) {
	return r.list(ctx, "SELECT "+custodyColumns+" FROM custody_records WHERE child_id = ? ORDER BY checked_in_at DESC, id DESC", childID)
}

// ListAll retrieves every custody record in insertion order
func (r *CustodyRepository) ListAll(ctx context.Context) ([]models.CustodyRecord, error) {
	return r.list(ctx, "SELECT "+custodyColumns+" FROM custody_records ORDER BY id ASC")
}

func (r *CustodyRepository) list(ctx context.Context, query string, args ...any) ([]models.CustodyRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query custody records: %w", err)
	}
	defer rows.Close()

	var records []models.CustodyRecord
	for rows.Next() {
		rec, err := scanCustody(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan custody record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Close writes the departure fields of an open record. It reports false when
// the record was already closed, so exactly one caller wins a race.
func (r *CustodyRepository) Close(ctx context.Context, id int64, d models.Departure) (bool, error) {
	query := `
		UPDATE custody_records
		SET checked_out_at = ?, checked_out_by = ?, pickup_person_name = ?, pickup_method = ?
		WHERE id = ? AND checked_out_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, d.At.UTC(), d.By, d.PickupPersonName, string(d.Method), id)
	if err != nil {
		return false, fmt.Errorf("failed to close custody record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to close custody record: %w", err)
	}
	return n == 1, nil
}
