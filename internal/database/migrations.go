package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations
var embeddedMigrations embed.FS

// RunMigrations executes the SQL migration files for the current dialect.
// An empty migrationsPath uses the migrations compiled into the binary;
// otherwise files are read from <migrationsPath>/<dialect>/*.sql.
func (db *DB) RunMigrations(ctx context.Context, migrationsPath string, logger *zap.Logger) error {
	var source fs.FS
	if migrationsPath == "" {
		sub, err := fs.Sub(embeddedMigrations, "migrations")
		if err != nil {
			return fmt.Errorf("failed to open embedded migrations: %w", err)
		}
		source = sub
	} else {
		source = os.DirFS(migrationsPath)
	}
	return db.runMigrationsFS(ctx, source, logger)
}

func (db *DB) runMigrationsFS(ctx context.Context, source fs.FS, logger *zap.Logger) error {
	if _, err := db.ExecContext(ctx, db.Dialect.CreateMigrationsTableQuery()); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	files, err := fs.Glob(source, path.Join(db.Dialect.MigrationsSubdir(), "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	// Sort files to ensure they run in order
	sort.Strings(files)

	for _, file := range files {
		filename := path.Base(file)

		hasRun, err := db.hasMigrationRun(ctx, filename)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if hasRun {
			continue
		}

		content, err := fs.ReadFile(source, file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		if err := db.executeMigration(ctx, filename, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}

		logger.Info("migration completed", zap.String("file", filename), zap.String("dialect", db.Dialect.Name()))
	}

	return nil
}

// hasMigrationRun checks if a migration has already been executed
func (db *DB) hasMigrationRun(ctx context.Context, filename string) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM migrations WHERE filename = ?"
	if err := db.QueryRowContext(ctx, query, filename).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// executeMigration runs every statement of a migration and records it, all in
// one transaction where the dialect supports transactional DDL.
func (db *DB) executeMigration(ctx context.Context, filename, content string) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(content) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %q: %w", firstLine(stmt), err)
		}
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO migrations (filename) VALUES (?)", filename); err != nil {
		return err
	}
	return tx.Commit()
}

// splitStatements breaks a migration file on statement-terminating semicolons.
// MySQL rejects multi-statement Exec calls unless the DSN opts in, so every
// dialect runs statements one at a time. Lines starting with -- are dropped.
func splitStatements(content string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			statements = append(statements, strings.TrimSuffix(stmt, ";"))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
