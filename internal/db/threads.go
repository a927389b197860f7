package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/evanhsu/dealthread/internal/types"
)

// CreateThread inserts a new thread record
func (db *DB) CreateThread(ctx context.Context, thread *types.Thread) error {
	refs, err := json.Marshal(thread.CanvasRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal canvas refs: %w", err)
	}
	var segID, matVer *string
	var segScore *float64
	if thread.Segment != nil {
		segID = &thread.Segment.SegmentID
		segScore = &thread.Segment.MatchScore
		matVer = &thread.Segment.MaterialsVersion
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO threads (id, kind, stage, segment_id, segment_score, materials_version,
		                      lead_source, canvas_refs, terminal, archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		thread.ID, string(thread.Kind), thread.Stage, segID, segScore, matVer,
		emptyToNil(thread.LeadSource), refs, thread.Terminal, thread.Archived,
		thread.CreatedAt, thread.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}
	return nil
}

// GetThread retrieves a thread by ID, returning nil when absent
func (db *DB) GetThread(ctx context.Context, threadID uuid.UUID) (*types.Thread, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, kind, stage, segment_id, segment_score, materials_version, lead_source,
		        canvas_refs, current_action_id, terminal, archived, created_at, updated_at
		 FROM threads WHERE id = $1`, threadID)
	thread, err := scanThreadRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return thread, nil
}

// UpdateThread persists the mutable fields of a thread
func (db *DB) UpdateThread(ctx context.Context, thread *types.Thread) error {
	refs, err := json.Marshal(thread.CanvasRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal canvas refs: %w", err)
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE threads SET stage = $1, canvas_refs = $2, current_action_id = $3,
		        terminal = $4, archived = $5, updated_at = $6
		 WHERE id = $7`,
		thread.Stage, refs, thread.CurrentActionID,
		thread.Terminal, thread.Archived, thread.UpdatedAt, thread.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("thread not found: %s", thread.ID)
	}
	return nil
}

// ListThreads retrieves threads with optional filters
func (db *DB) ListThreads(ctx context.Context, filters types.ThreadFilters) ([]types.Thread, error) {
	query := `SELECT id, kind, stage, segment_id, segment_score, materials_version, lead_source,
	                 canvas_refs, current_action_id, terminal, archived, created_at, updated_at
	          FROM threads WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argNum)
		args = append(args, string(filters.Kind))
		argNum++
	}
	if filters.Stage != 0 {
		query += fmt.Sprintf(" AND stage = $%d", argNum)
		args = append(args, filters.Stage)
		argNum++
	}
	if filters.SegmentID != "" {
		query += fmt.Sprintf(" AND segment_id = $%d", argNum)
		args = append(args, filters.SegmentID)
		argNum++
	}
	if filters.LeadSource != "" {
		query += fmt.Sprintf(" AND lead_source = $%d", argNum)
		args = append(args, filters.LeadSource)
		argNum++
	}
	if filters.Archived != nil {
		query += fmt.Sprintf(" AND archived = $%d", argNum)
		args = append(args, *filters.Archived)
		argNum++
	}
	query += " ORDER BY created_at"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []types.Thread
	for rows.Next() {
		thread, err := scanThreadRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, *thread)
	}
	return threads, rows.Err()
}

// SaveStageRecord appends a stage record; the primary key rejects rewrites
func (db *DB) SaveStageRecord(ctx context.Context, rec *types.StageRecord) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO stage_records (thread_id, stage, payload, created_at) VALUES ($1, $2, $3, $4)`,
		rec.ThreadID, rec.Stage, []byte(rec.Payload), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save stage record: %w", err)
	}
	return nil
}

// GetStageRecord retrieves one stage record, returning nil when absent
func (db *DB) GetStageRecord(ctx context.Context, threadID uuid.UUID, stage int) (*types.StageRecord, error) {
	rec := types.StageRecord{ThreadID: threadID}
	var payload []byte
	err := db.pool.QueryRow(ctx,
		`SELECT stage, payload, created_at FROM stage_records WHERE thread_id = $1 AND stage = $2`,
		threadID, stage,
	).Scan(&rec.Stage, &payload, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage record: %w", err)
	}
	rec.Payload = payload
	return &rec, nil
}

// CreateAction inserts an action; seq is assigned by the database
func (db *DB) CreateAction(ctx context.Context, action *types.Action) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO actions (id, thread_id, type, status, human_required, result, skill,
		                      assigned_to, notes, created_at, due, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		action.ID, action.ThreadID, action.Type, action.Status, action.HumanRequired,
		emptyToNil(action.Result), emptyToNil(action.Skill), emptyToNil(action.AssignedTo),
		emptyToNil(action.Notes), action.CreatedAt, action.Due, action.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create action: %w", err)
	}
	return nil
}

// UpdateAction persists the mutable fields of an action
func (db *DB) UpdateAction(ctx context.Context, action *types.Action) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE actions SET status = $1, result = $2, assigned_to = $3, notes = $4, completed_at = $5
		 WHERE id = $6 AND thread_id = $7`,
		action.Status, emptyToNil(action.Result), emptyToNil(action.AssignedTo),
		emptyToNil(action.Notes), action.CompletedAt, action.ID, action.ThreadID,
	)
	if err != nil {
		return fmt.Errorf("failed to update action: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("action not found: %s", action.ID)
	}
	return nil
}

// GetAction retrieves an action scoped to its thread, returning nil when absent
func (db *DB) GetAction(ctx context.Context, threadID, actionID uuid.UUID) (*types.Action, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, thread_id, type, status, human_required, result, skill, assigned_to,
		        notes, created_at, due, completed_at
		 FROM actions WHERE id = $1 AND thread_id = $2`, actionID, threadID)
	action, err := scanActionRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return action, nil
}

// ListActions retrieves a thread's actions in creation order
func (db *DB) ListActions(ctx context.Context, threadID uuid.UUID) ([]types.Action, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, thread_id, type, status, human_required, result, skill, assigned_to,
		        notes, created_at, due, completed_at
		 FROM actions WHERE thread_id = $1 ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []types.Action
	for rows.Next() {
		action, err := scanActionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, *action)
	}
	return actions, rows.Err()
}

func scanThreadRow(row pgx.Row) (*types.Thread, error) {
	var t types.Thread
	var kind string
	var segID, matVer, leadSource *string
	var segScore *float64
	var refs []byte

	err := row.Scan(&t.ID, &kind, &t.Stage, &segID, &segScore, &matVer, &leadSource,
		&refs, &t.CurrentActionID, &t.Terminal, &t.Archived, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Kind = types.ThreadKind(kind)
	if segID != nil {
		t.Segment = &types.SegmentBinding{SegmentID: *segID}
		if segScore != nil {
			t.Segment.MatchScore = *segScore
		}
		if matVer != nil {
			t.Segment.MaterialsVersion = *matVer
		}
	}
	if leadSource != nil {
		t.LeadSource = *leadSource
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &t.CanvasRefs); err != nil {
			return nil, fmt.Errorf("invalid canvas refs: %w", err)
		}
	}
	return &t, nil
}

func scanActionRow(row pgx.Row) (*types.Action, error) {
	var a types.Action
	var result, skill, assignedTo, notes *string

	err := row.Scan(&a.ID, &a.ThreadID, &a.Type, &a.Status, &a.HumanRequired, &result, &skill,
		&assignedTo, &notes, &a.CreatedAt, &a.Due, &a.CompletedAt)
	if err != nil {
		return nil, err
	}
	if result != nil {
		a.Result = *result
	}
	if skill != nil {
		a.Skill = *skill
	}
	if assignedTo != nil {
		a.AssignedTo = *assignedTo
	}
	if notes != nil {
		a.Notes = *notes
	}
	return &a, nil
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
