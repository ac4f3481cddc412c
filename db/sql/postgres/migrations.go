package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// ApplyMigrations runs every migration newer than the recorded version, each
// in its own transaction. It returns how many were applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrations ...Migration) (int, error) {
	if db == nil {
		return 0, errors.New("postgres: db is nil")
	}
	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return 0, fmt.Errorf("postgres: migrate: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("postgres: migrate: read version: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current || m.SQL == "" {
			continue
		}
		if err := applyOne(ctx, db, m); err != nil {
			return applied, err
		}
		current = m.Version
		applied++
	}
	return applied, nil
}

func applyOne(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: migrate %d: %w", m.Version, err)
	}
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("postgres: migrate %d (%s): %w", m.Version, m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("postgres: migrate %d: record: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: migrate %d: commit: %w", m.Version, err)
	}
	return nil
}

// Migrate brings db to the marketplace schema.
func Migrate(ctx context.Context, db *sql.DB) (int, error) {
	return ApplyMigrations(ctx, db, Schema...)
}
