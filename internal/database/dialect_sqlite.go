package database

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDialect implements Dialect for SQLite
type SQLiteDialect struct{}

// NewSQLiteDialect creates a new SQLite dialect
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// DSN applies the pragmas on every pooled connection. _txlock=immediate makes
// BEGIN take the write lock up front, so two admissions never interleave
// their count and insert.
func (d *SQLiteDialect) DSN(config DialectConfig) string {
	params := "_txlock=immediate&_busy_timeout=10000&_foreign_keys=on&_journal_mode=WAL"
	if strings.Contains(config.Path, "?") {
		return config.Path + "&" + params
	}
	return "file:" + config.Path + "?" + params
}

func (d *SQLiteDialect) RewriteQuery(query string) string {
	// SQLite uses ? placeholders, no rewrite needed
	return query
}

func (d *SQLiteDialect) SupportsLastInsertId() bool {
	return true
}

func (d *SQLiteDialect) ConfigureConnection(db *sql.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return nil
}

func (d *SQLiteDialect) MigrationsSubdir() string {
	return "sqlite"
}

func (d *SQLiteDialect) CreateMigrationsTableQuery() string {
	return `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT UNIQUE NOT NULL,
			executed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
}

// TxOptions leaves isolation to the driver; SQLite transactions are
// serializable once the write lock is held.
func (d *SQLiteDialect) TxOptions() *sql.TxOptions {
	return nil
}

func (d *SQLiteDialect) IsConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return true
	case sqlite3.ErrConstraint:
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
