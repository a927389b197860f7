// Package db provides PostgreSQL persistence for threads, actions, the
// shared canvas and campaigns.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate creates the schema if it does not exist. Timestamps are stored as
// timestamptz; JSON payloads and reference lists as jsonb.
func (db *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			stage INT NOT NULL DEFAULT 0,
			segment_id TEXT,
			segment_score DOUBLE PRECISION,
			materials_version TEXT,
			lead_source TEXT,
			canvas_refs JSONB NOT NULL DEFAULT '[]',
			current_action_id UUID,
			terminal BOOLEAN NOT NULL DEFAULT FALSE,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_threads_kind ON threads (kind)`,
		`CREATE INDEX IF NOT EXISTS idx_threads_segment ON threads (segment_id)`,
		`CREATE TABLE IF NOT EXISTS stage_records (
			thread_id UUID NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
			stage INT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (thread_id, stage)
		)`,
		`CREATE TABLE IF NOT EXISTS actions (
			id UUID PRIMARY KEY,
			thread_id UUID NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			human_required BOOLEAN NOT NULL DEFAULT FALSE,
			result TEXT,
			skill TEXT,
			assigned_to TEXT,
			notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			due TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			seq BIGSERIAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_thread_seq ON actions (thread_id, seq)`,
		`CREATE TABLE IF NOT EXISTS canvas_entries (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			evidence_refs JSONB NOT NULL DEFAULT '[]',
			version INT NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			segment_id TEXT NOT NULL,
			segment_score DOUBLE PRECISION NOT NULL,
			materials_version TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
