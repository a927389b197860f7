package storage

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 1

// Migrate ensures the SQLite schema exists and is upgraded to SchemaVersion.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}
	if current >= SchemaVersion {
		return nil
	}

	transaction, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	_, err = transaction.Exec(`
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			stage INTEGER NOT NULL DEFAULT 0,
			segment_id TEXT NULL,
			segment_score REAL NULL,
			materials_version TEXT NULL,
			lead_source TEXT NULL,
			canvas_refs TEXT NOT NULL DEFAULT '[]',
			current_action_id TEXT NULL,
			terminal INTEGER NOT NULL DEFAULT 0,
			archived INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create threads table: %w", err)
	}

	_, err = transaction.Exec(`
		CREATE TABLE IF NOT EXISTS stage_records (
			thread_id TEXT NOT NULL,
			stage INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (thread_id, stage),
			FOREIGN KEY(thread_id) REFERENCES threads(id)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create stage_records table: %w", err)
	}

	_, err = transaction.Exec(`
		CREATE TABLE IF NOT EXISTS actions (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			human_required INTEGER NOT NULL DEFAULT 0,
			result TEXT NULL,
			skill TEXT NULL,
			assigned_to TEXT NULL,
			notes TEXT NULL,
			created_at TEXT NOT NULL,
			due TEXT NULL,
			completed_at TEXT NULL,
			seq INTEGER NOT NULL,
			FOREIGN KEY(thread_id) REFERENCES threads(id)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create actions table: %w", err)
	}

	_, err = transaction.Exec(`
		CREATE TABLE IF NOT EXISTS canvas_entries (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence REAL NOT NULL,
			evidence_refs TEXT NOT NULL DEFAULT '[]',
			version INTEGER NOT NULL DEFAULT 0,
			last_updated TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create canvas_entries table: %w", err)
	}

	_, err = transaction.Exec(`
		CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			segment_id TEXT NOT NULL,
			segment_score REAL NOT NULL,
			materials_version TEXT NULL,
			created_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create campaigns table: %w", err)
	}

	_, err = transaction.Exec(`CREATE INDEX IF NOT EXISTS idx_actions_thread_seq ON actions(thread_id, seq);`)
	if err != nil {
		return fmt.Errorf("migrate: create idx_actions_thread_seq: %w", err)
	}

	_, err = transaction.Exec(`INSERT INTO schema_migrations(version) VALUES (?);`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record schema version: %w", err)
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("migrate: commit transaction: %w", err)
	}
	return nil
}
