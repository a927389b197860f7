package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/types"
)

// mergeRetries bounds the optimistic-concurrency loop in Merge.
const mergeRetries = 5

// Get retrieves a canvas entry by ID, returning nil when absent
func (db *DB) Get(ctx context.Context, entryID string) (*types.CanvasEntry, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, title, status, confidence, evidence_refs, version, last_updated
		 FROM canvas_entries WHERE id = $1`, entryID)
	entry, err := scanEntryRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canvas entry: %w", err)
	}
	return entry, nil
}

// List retrieves all canvas entries
func (db *DB) List(ctx context.Context) ([]types.CanvasEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, title, status, confidence, evidence_refs, version, last_updated
		 FROM canvas_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list canvas entries: %w", err)
	}
	defer rows.Close()

	var entries []types.CanvasEntry
	for rows.Next() {
		entry, err := scanEntryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan canvas entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Create inserts a brand-new entry, failing with EntryExistsError when the
// ID is already taken
func (db *DB) Create(ctx context.Context, entry *types.CanvasEntry) error {
	refs, err := json.Marshal(entry.EvidenceRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence refs: %w", err)
	}
	result, err := db.pool.Exec(ctx,
		`INSERT INTO canvas_entries (id, title, status, confidence, evidence_refs, version, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.Title, entry.Status, entry.Confidence, refs, entry.Version, entry.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to create canvas entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &engine.EntryExistsError{EntryID: entry.ID}
	}
	return nil
}

// Merge applies an update under optimistic concurrency: read the current
// version, fold via the shared merge rule, and write back only if the
// version is unchanged. A lost race retries with the fresh row. A missing
// entry is created with the untested baseline first.
func (db *DB) Merge(ctx context.Context, update types.CanvasUpdate) (*types.CanvasEntry, error) {
	for attempt := 0; attempt < mergeRetries; attempt++ {
		entry, err := db.Get(ctx, update.EntryID)
		if err != nil {
			return nil, err
		}

		if entry == nil {
			entry = engine.NewBaselineEntry(update.EntryID, update.Title)
			engine.ApplyCanvasUpdate(entry, update)
			err := db.Create(ctx, entry)
			var exists *engine.EntryExistsError
			if errors.As(err, &exists) {
				// Another writer created it first; merge into theirs.
				continue
			}
			if err != nil {
				return nil, err
			}
			return entry, nil
		}

		priorVersion := entry.Version
		if !engine.ApplyCanvasUpdate(entry, update) {
			// Evidence from this thread is already recorded.
			return entry, nil
		}

		refs, err := json.Marshal(entry.EvidenceRefs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal evidence refs: %w", err)
		}
		result, err := db.pool.Exec(ctx,
			`UPDATE canvas_entries
			 SET status = $1, confidence = $2, evidence_refs = $3, version = $4, last_updated = $5
			 WHERE id = $6 AND version = $7`,
			entry.Status, entry.Confidence, refs, entry.Version, entry.LastUpdated,
			entry.ID, priorVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to merge canvas entry %s: %w", entry.ID, err)
		}
		if result.RowsAffected() > 0 {
			return entry, nil
		}
		// Version moved under us; reread and retry.
	}
	return nil, &engine.MergeConflictError{EntryID: update.EntryID, Retries: mergeRetries}
}

func scanEntryRow(row pgx.Row) (*types.CanvasEntry, error) {
	var e types.CanvasEntry
	var refs []byte
	err := row.Scan(&e.ID, &e.Title, &e.Status, &e.Confidence, &refs, &e.Version, &e.LastUpdated)
	if err != nil {
		return nil, err
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &e.EvidenceRefs); err != nil {
			return nil, fmt.Errorf("invalid evidence refs: %w", err)
		}
	}
	return &e, nil
}
