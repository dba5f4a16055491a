package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Initialize(filepath.Join(t.TempDir(), "kidcheck.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations(context.Background(), "", zap.NewNop()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// TestDatabaseIntegration checks that the embedded migrations create the schema
func TestDatabaseIntegration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tables := []string{
		"classrooms", "children", "guardians", "child_guardians", "authorized_pickups",
		"custody_records", "pickup_authorizations", "leader_overrides", "pickup_attempts", "audit_events",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	// Running again is a no-op
	if err := db.RunMigrations(ctx, "", zap.NewNop()); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 recorded migration, got %d", count)
	}
}

func seedChild(t *testing.T, db *DB) int64 {
	t.Helper()
	ctx := context.Background()
	classroomID, err := db.ExecReturningID(ctx, "INSERT INTO classrooms (name, max_capacity) VALUES (?, ?)", "Maternal", 5)
	if err != nil {
		t.Fatalf("insert classroom: %v", err)
	}
	childID, err := db.ExecReturningID(ctx, "INSERT INTO children (name, classroom_id) VALUES (?, ?)", "Ana", classroomID)
	if err != nil {
		t.Fatalf("insert child: %v", err)
	}
	return childID
}

// TestOpenRecordUniqueness checks the partial unique index behind the
// one-open-record-per-child rule.
func TestOpenRecordUniqueness(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	childID := seedChild(t, db)

	insert := `INSERT INTO custody_records (child_id, event_date, event_name, classroom, custody_token, label_number, checked_in_at, checked_in_by)
		VALUES (?, '2026-10-18', 'Sunday', 'Maternal', ?, ?, CURRENT_TIMESTAMP, 'staff')`

	firstID, err := db.ExecReturningID(ctx, insert, childID, "token-1", 1)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}

	_, err = db.ExecContext(ctx, insert, childID, "token-2", 2)
	if err == nil {
		t.Fatal("expected second open record to be rejected")
	}
	if !db.Dialect.IsConflict(err) {
		t.Errorf("expected unique violation to classify as conflict, got %v", err)
	}

	if _, err := db.ExecContext(ctx, "UPDATE custody_records SET checked_out_at = CURRENT_TIMESTAMP WHERE id = ?", firstID); err != nil {
		t.Fatalf("close record: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, childID, "token-3", 3); err != nil {
		t.Errorf("insert after close should succeed: %v", err)
	}
}

func TestWithTxCommitAndRollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO guardians (name) VALUES (?)", "committed")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx commit: %v", err)
	}

	sentinel := errors.New("abort")
	err = db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO guardians (name) VALUES (?)", "rolled back"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM guardians").Scan(&count); err != nil {
		t.Fatalf("count guardians: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 guardian, got %d", count)
	}
}

// TestWithTxSerializesWriters runs concurrent read-modify-write transactions
// and expects no lost updates.
func TestWithTxSerializesWriters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.ExecReturningID(ctx, "INSERT INTO classrooms (name, max_capacity) VALUES (?, ?)", "Counter", 0)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	const workers = 20
	var (
		wg       sync.WaitGroup
		failures atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.WithTx(ctx, func(tx *Tx) error {
				var current int
				if err := tx.QueryRowContext(ctx, "SELECT max_capacity FROM classrooms WHERE id = ?", id).Scan(&current); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx, "UPDATE classrooms SET max_capacity = ? WHERE id = ?", current+1, id)
				return err
			})
			if err != nil {
				failures.Add(1)
				t.Errorf("WithTx: %v", err)
			}
		}()
	}
	wg.Wait()

	var final int
	if err := db.QueryRowContext(ctx, "SELECT max_capacity FROM classrooms WHERE id = ?", id).Scan(&final); err != nil {
		t.Fatalf("read final: %v", err)
	}
	if final != workers-int(failures.Load()) {
		t.Errorf("final counter = %d, want %d", final, workers)
	}
}
