// Package storage holds the schema migration model shared by every package
// that owns tables. Connection management and caches live in storage/postgres.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Collect merges migration sets and orders them by version.
// Two migrations sharing a version is a programming error.
func Collect(sets ...[]Migration) ([]Migration, error) {
	seen := make(map[int]string)
	var all []Migration
	for _, set := range sets {
		for _, m := range set {
			if prev, ok := seen[m.Version]; ok {
				return nil, fmt.Errorf("migration version %d declared twice (%q and %q)", m.Version, prev, m.Description)
			}
			seen[m.Version] = m.Description
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })
	return all, nil
}

// RunMigrations applies every migration not yet recorded in schema_migrations.
// Each migration runs in its own transaction.
func RunMigrations(ctx context.Context, db *sql.DB, migrations []Migration, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		logger.WithField("version", m.Version).Infof("Running migration: %s", m.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
