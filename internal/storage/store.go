package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/types"
)

// Store is the embedded SQLite implementation of the engine's persistence
// interfaces, used for single-operator CLI runs without a Postgres server.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path and runs migrations.
// Pass ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// Serialized access keeps read-modify-write merges correct; throughput
	// needs of the local store are modest.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateThread(ctx context.Context, thread *types.Thread) error {
	refs, err := json.Marshal(thread.CanvasRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal canvas refs: %w", err)
	}
	var segID, matVer sql.NullString
	var segScore sql.NullFloat64
	if thread.Segment != nil {
		segID = sql.NullString{String: thread.Segment.SegmentID, Valid: true}
		segScore = sql.NullFloat64{Float64: thread.Segment.MatchScore, Valid: true}
		matVer = sql.NullString{String: thread.Segment.MaterialsVersion, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO threads (id, kind, stage, segment_id, segment_score, materials_version,
		                      lead_source, canvas_refs, terminal, archived, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		thread.ID.String(), string(thread.Kind), thread.Stage, segID, segScore, matVer,
		nullable(thread.LeadSource), string(refs), boolInt(thread.Terminal), boolInt(thread.Archived),
		formatTime(thread.CreatedAt), formatTime(thread.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}
	return nil
}

func (s *Store) GetThread(ctx context.Context, threadID uuid.UUID) (*types.Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, stage, segment_id, segment_score, materials_version, lead_source,
		        canvas_refs, current_action_id, terminal, archived, created_at, updated_at
		 FROM threads WHERE id = ?`, threadID.String())
	thread, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return thread, nil
}

func (s *Store) UpdateThread(ctx context.Context, thread *types.Thread) error {
	refs, err := json.Marshal(thread.CanvasRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal canvas refs: %w", err)
	}
	var currentAction sql.NullString
	if thread.CurrentActionID != nil {
		currentAction = sql.NullString{String: thread.CurrentActionID.String(), Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE threads SET stage = ?, canvas_refs = ?, current_action_id = ?,
		        terminal = ?, archived = ?, updated_at = ?
		 WHERE id = ?`,
		thread.Stage, string(refs), currentAction,
		boolInt(thread.Terminal), boolInt(thread.Archived), formatTime(thread.UpdatedAt),
		thread.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("thread not found: %s", thread.ID)
	}
	return nil
}

func (s *Store) ListThreads(ctx context.Context, filters types.ThreadFilters) ([]types.Thread, error) {
	query := `SELECT id, kind, stage, segment_id, segment_score, materials_version, lead_source,
	                 canvas_refs, current_action_id, terminal, archived, created_at, updated_at
	          FROM threads WHERE 1=1`
	args := []any{}
	if filters.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filters.Kind))
	}
	if filters.Stage != 0 {
		query += " AND stage = ?"
		args = append(args, filters.Stage)
	}
	if filters.SegmentID != "" {
		query += " AND segment_id = ?"
		args = append(args, filters.SegmentID)
	}
	if filters.LeadSource != "" {
		query += " AND lead_source = ?"
		args = append(args, filters.LeadSource)
	}
	if filters.Archived != nil {
		query += " AND archived = ?"
		args = append(args, boolInt(*filters.Archived))
	}
	query += " ORDER BY created_at"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []types.Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, *thread)
	}
	return threads, rows.Err()
}

func (s *Store) SaveStageRecord(ctx context.Context, rec *types.StageRecord) error {
	// Append-only: a second write for the same (thread, stage) is rejected
	// by the primary key.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_records (thread_id, stage, payload, created_at) VALUES (?, ?, ?, ?)`,
		rec.ThreadID.String(), rec.Stage, string(rec.Payload), formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save stage record: %w", err)
	}
	return nil
}

func (s *Store) GetStageRecord(ctx context.Context, threadID uuid.UUID, stage int) (*types.StageRecord, error) {
	var rec types.StageRecord
	var payload, createdAt string
	var threadIDStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT thread_id, stage, payload, created_at FROM stage_records WHERE thread_id = ? AND stage = ?`,
		threadID.String(), stage,
	).Scan(&threadIDStr, &rec.Stage, &payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage record: %w", err)
	}
	rec.ThreadID = threadID
	rec.Payload = json.RawMessage(payload)
	rec.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) CreateAction(ctx context.Context, action *types.Action) error {
	var due, completed sql.NullString
	if action.Due != nil {
		due = sql.NullString{String: formatTime(*action.Due), Valid: true}
	}
	if action.CompletedAt != nil {
		completed = sql.NullString{String: formatTime(*action.CompletedAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actions (id, thread_id, type, status, human_required, result, skill,
		                      assigned_to, notes, created_at, due, completed_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		         (SELECT COALESCE(MAX(seq), 0) + 1 FROM actions WHERE thread_id = ?))`,
		action.ID.String(), action.ThreadID.String(), action.Type, action.Status,
		boolInt(action.HumanRequired), nullable(action.Result), nullable(action.Skill),
		nullable(action.AssignedTo), nullable(action.Notes), formatTime(action.CreatedAt),
		due, completed, action.ThreadID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create action: %w", err)
	}
	return nil
}

func (s *Store) UpdateAction(ctx context.Context, action *types.Action) error {
	var completed sql.NullString
	if action.CompletedAt != nil {
		completed = sql.NullString{String: formatTime(*action.CompletedAt), Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, result = ?, assigned_to = ?, notes = ?, completed_at = ?
		 WHERE id = ? AND thread_id = ?`,
		action.Status, nullable(action.Result), nullable(action.AssignedTo), nullable(action.Notes),
		completed, action.ID.String(), action.ThreadID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update action: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update action: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("action not found: %s", action.ID)
	}
	return nil
}

func (s *Store) GetAction(ctx context.Context, threadID, actionID uuid.UUID) (*types.Action, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, thread_id, type, status, human_required, result, skill, assigned_to,
		        notes, created_at, due, completed_at
		 FROM actions WHERE id = ? AND thread_id = ?`,
		actionID.String(), threadID.String())
	action, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return action, nil
}

func (s *Store) ListActions(ctx context.Context, threadID uuid.UUID) ([]types.Action, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, type, status, human_required, result, skill, assigned_to,
		        notes, created_at, due, completed_at
		 FROM actions WHERE thread_id = ? ORDER BY seq`,
		threadID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []types.Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, *action)
	}
	return actions, rows.Err()
}

func (s *Store) Get(ctx context.Context, entryID string) (*types.CanvasEntry, error) {
	entry, err := getEntry(ctx, s.db, entryID)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) List(ctx context.Context) ([]types.CanvasEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, status, confidence, evidence_refs, version, last_updated
		 FROM canvas_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list canvas entries: %w", err)
	}
	defer rows.Close()

	var entries []types.CanvasEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan canvas entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (s *Store) Create(ctx context.Context, entry *types.CanvasEntry) error {
	refs, err := json.Marshal(entry.EvidenceRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence refs: %w", err)
	}
	existing, err := getEntry(ctx, s.db, entry.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return &engine.EntryExistsError{EntryID: entry.ID}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO canvas_entries (id, title, status, confidence, evidence_refs, version, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Title, entry.Status, entry.Confidence, string(refs), entry.Version,
		formatTime(entry.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("failed to create canvas entry: %w", err)
	}
	return nil
}

// Merge applies an update inside a transaction: read, fold via the shared
// merge rule, write back. A missing entry is created with the untested
// baseline first.
func (s *Store) Merge(ctx context.Context, update types.CanvasUpdate) (*types.CanvasEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	entry, err := getEntry(ctx, tx, update.EntryID)
	if err != nil {
		return nil, err
	}
	fresh := entry == nil
	if fresh {
		entry = engine.NewBaselineEntry(update.EntryID, update.Title)
	}
	changed := engine.ApplyCanvasUpdate(entry, update)

	refs, err := json.Marshal(entry.EvidenceRefs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evidence refs: %w", err)
	}
	switch {
	case fresh:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO canvas_entries (id, title, status, confidence, evidence_refs, version, last_updated)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.Title, entry.Status, entry.Confidence, string(refs), entry.Version,
			formatTime(entry.LastUpdated))
	case changed:
		_, err = tx.ExecContext(ctx,
			`UPDATE canvas_entries SET status = ?, confidence = ?, evidence_refs = ?, version = ?, last_updated = ?
			 WHERE id = ?`,
			entry.Status, entry.Confidence, string(refs), entry.Version,
			formatTime(entry.LastUpdated), entry.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write canvas entry %s: %w", entry.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}
	return entry, nil
}

func (s *Store) CreateCampaign(ctx context.Context, campaign *types.Campaign) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, name, segment_id, segment_score, materials_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		campaign.ID, campaign.Name, campaign.Segment.SegmentID, campaign.Segment.MatchScore,
		nullable(campaign.Segment.MaterialsVersion), formatTime(campaign.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (s *Store) GetCampaign(ctx context.Context, campaignID string) (*types.Campaign, error) {
	var c types.Campaign
	var matVer sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, segment_id, segment_score, materials_version, created_at
		 FROM campaigns WHERE id = ?`, campaignID,
	).Scan(&c.ID, &c.Name, &c.Segment.SegmentID, &c.Segment.MatchScore, &matVer, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	c.Segment.MaterialsVersion = matVer.String
	c.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// querier abstracts *sql.DB and *sql.Tx for shared read helpers.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEntry(ctx context.Context, q querier, entryID string) (*types.CanvasEntry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, title, status, confidence, evidence_refs, version, last_updated
		 FROM canvas_entries WHERE id = ?`, entryID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canvas entry: %w", err)
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*types.Thread, error) {
	var t types.Thread
	var id string
	var kind string
	var segID, matVer, leadSource, refsJSON, currentAction sql.NullString
	var segScore sql.NullFloat64
	var terminal, archived int
	var createdAt, updatedAt string

	err := row.Scan(&id, &kind, &t.Stage, &segID, &segScore, &matVer, &leadSource,
		&refsJSON, &currentAction, &terminal, &archived, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid thread id %q: %w", id, err)
	}
	t.Kind = types.ThreadKind(kind)
	if segID.Valid {
		t.Segment = &types.SegmentBinding{
			SegmentID:        segID.String,
			MatchScore:       segScore.Float64,
			MaterialsVersion: matVer.String,
		}
	}
	t.LeadSource = leadSource.String
	if refsJSON.Valid && refsJSON.String != "" {
		if err := json.Unmarshal([]byte(refsJSON.String), &t.CanvasRefs); err != nil {
			return nil, fmt.Errorf("invalid canvas refs: %w", err)
		}
	}
	if currentAction.Valid {
		actionID, err := uuid.Parse(currentAction.String)
		if err != nil {
			return nil, fmt.Errorf("invalid action id %q: %w", currentAction.String, err)
		}
		t.CurrentActionID = &actionID
	}
	t.Terminal = terminal != 0
	t.Archived = archived != 0
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanAction(row rowScanner) (*types.Action, error) {
	var a types.Action
	var id, threadID string
	var humanRequired int
	var result, skill, assignedTo, notes, due, completed sql.NullString
	var createdAt string

	err := row.Scan(&id, &threadID, &a.Type, &a.Status, &humanRequired, &result, &skill,
		&assignedTo, &notes, &createdAt, &due, &completed)
	if err != nil {
		return nil, err
	}
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid action id %q: %w", id, err)
	}
	if a.ThreadID, err = uuid.Parse(threadID); err != nil {
		return nil, fmt.Errorf("invalid thread id %q: %w", threadID, err)
	}
	a.HumanRequired = humanRequired != 0
	a.Result = result.String
	a.Skill = skill.String
	a.AssignedTo = assignedTo.String
	a.Notes = notes.String
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if due.Valid {
		t, err := parseTime(due.String)
		if err != nil {
			return nil, err
		}
		a.Due = &t
	}
	if completed.Valid {
		t, err := parseTime(completed.String)
		if err != nil {
			return nil, err
		}
		a.CompletedAt = &t
	}
	return &a, nil
}

func scanEntry(row rowScanner) (*types.CanvasEntry, error) {
	var e types.CanvasEntry
	var refsJSON, lastUpdated string
	err := row.Scan(&e.ID, &e.Title, &e.Status, &e.Confidence, &refsJSON, &e.Version, &lastUpdated)
	if err != nil {
		return nil, err
	}
	if refsJSON != "" {
		if err := json.Unmarshal([]byte(refsJSON), &e.EvidenceRefs); err != nil {
			return nil, fmt.Errorf("invalid evidence refs: %w", err)
		}
	}
	if e.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, err
	}
	return &e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
