package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration is one ordered schema step. Statements must be valid for both
// Postgres and SQLite.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// Migrations is applied in order; applied versions are recorded in schema_migrations.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "core",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS classes (
				id TEXT PRIMARY KEY
			)`,
			`CREATE TABLE IF NOT EXISTS authorized_codes (
				id         TEXT PRIMARY KEY,
				class_id   TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
				code_hash  TEXT NOT NULL,
				code_plain TEXT,
				UNIQUE (class_id, code_hash)
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id        TEXT PRIMARY KEY,
				class_id  TEXT NOT NULL REFERENCES classes(id),
				starts_at TIMESTAMP NOT NULL,
				ends_at   TIMESTAMP NOT NULL,
				CHECK (ends_at > starts_at),
				UNIQUE (class_id, starts_at)
			)`,
			`CREATE TABLE IF NOT EXISTS attendance (
				id          TEXT PRIMARY KEY,
				session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				class_id    TEXT NOT NULL,
				code_hash   TEXT NOT NULL,
				status      TEXT NOT NULL CHECK (status IN ('neconfirmat', 'prezent', 'întârziat', 'plecat')),
				check_in_at TIMESTAMP,
				UNIQUE (session_id, code_hash)
			)`,
		},
	},
	{
		Version: 2,
		Name:    "attempt_log",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS attempt_log (
				id         TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				class_id   TEXT NOT NULL,
				action     TEXT NOT NULL,
				device_id  TEXT NOT NULL,
				code_hash  TEXT,
				success    BOOLEAN NOT NULL,
				reason     TEXT NOT NULL,
				ip         TEXT NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_attempt_session_device_time
				ON attempt_log (session_id, device_id, created_at)`,
		},
	},
	{
		Version: 3,
		Name:    "checkout",
		Statements: []string{
			`ALTER TABLE attendance ADD COLUMN check_out_at TIMESTAMP`,
			`ALTER TABLE attendance ADD COLUMN checkin_status TEXT`,
		},
	},
	{
		Version: 4,
		Name:    "frozen_present_count",
		Statements: []string{
			`ALTER TABLE sessions ADD COLUMN frozen_present_count INTEGER`,
			`ALTER TABLE sessions ADD COLUMN frozen_at TIMESTAMP`,
		},
	},
	{
		Version: 5,
		Name:    "teachers",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS teachers (
				id            TEXT PRIMARY KEY,
				email         TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				class_id      TEXT NOT NULL REFERENCES classes(id)
			)`,
		},
	},
}

// Migrate applies every pending migration. Running it again is a no-op.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]bool{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)
	`, m.Version, m.Name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}
