// Package storage provides local store implementations of the engine's
// persistence interfaces: an embedded SQLite database for CLI use and an
// in-memory store for tests and ephemeral runs.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/types"
)

type stageKey struct {
	threadID uuid.UUID
	stage    int
}

// MemStore is a mutex-guarded in-memory implementation of ThreadStore,
// CanvasStore and CampaignStore. Canvas merges run under the store lock,
// which satisfies the read-modify-write contract.
type MemStore struct {
	mu        sync.RWMutex
	threads   map[uuid.UUID]types.Thread
	stages    map[stageKey]types.StageRecord
	actions   map[uuid.UUID][]types.Action
	canvas    map[string]types.CanvasEntry
	campaigns map[string]types.Campaign
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		threads:   make(map[uuid.UUID]types.Thread),
		stages:    make(map[stageKey]types.StageRecord),
		actions:   make(map[uuid.UUID][]types.Action),
		canvas:    make(map[string]types.CanvasEntry),
		campaigns: make(map[string]types.Campaign),
	}
}

func (s *MemStore) CreateThread(_ context.Context, thread *types.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.threads[thread.ID]; exists {
		return fmt.Errorf("thread already exists: %s", thread.ID)
	}
	s.threads[thread.ID] = cloneThread(thread)
	return nil
}

func (s *MemStore) GetThread(_ context.Context, threadID uuid.UUID) (*types.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil, nil
	}
	out := cloneThread(&t)
	return &out, nil
}

func (s *MemStore) UpdateThread(_ context.Context, thread *types.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[thread.ID]; !ok {
		return fmt.Errorf("thread not found: %s", thread.ID)
	}
	s.threads[thread.ID] = cloneThread(thread)
	return nil
}

func (s *MemStore) ListThreads(_ context.Context, filters types.ThreadFilters) ([]types.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		if filters.Kind != "" && t.Kind != filters.Kind {
			continue
		}
		if filters.Stage != 0 && t.Stage != filters.Stage {
			continue
		}
		if filters.SegmentID != "" && (t.Segment == nil || t.Segment.SegmentID != filters.SegmentID) {
			continue
		}
		if filters.LeadSource != "" && t.LeadSource != filters.LeadSource {
			continue
		}
		if filters.Archived != nil && t.Archived != *filters.Archived {
			continue
		}
		out = append(out, cloneThread(&t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (s *MemStore) SaveStageRecord(_ context.Context, rec *types.StageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stageKey{threadID: rec.ThreadID, stage: rec.Stage}
	if _, exists := s.stages[key]; exists {
		return fmt.Errorf("stage record already exists: thread %s stage %d", rec.ThreadID, rec.Stage)
	}
	stored := *rec
	stored.Payload = append([]byte(nil), rec.Payload...)
	s.stages[key] = stored
	return nil
}

func (s *MemStore) GetStageRecord(_ context.Context, threadID uuid.UUID, stage int) (*types.StageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.stages[stageKey{threadID: threadID, stage: stage}]
	if !ok {
		return nil, nil
	}
	out := rec
	out.Payload = append([]byte(nil), rec.Payload...)
	return &out, nil
}

func (s *MemStore) CreateAction(_ context.Context, action *types.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action.ThreadID] = append(s.actions[action.ThreadID], *action)
	return nil
}

func (s *MemStore) UpdateAction(_ context.Context, action *types.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.actions[action.ThreadID]
	for i := range log {
		if log[i].ID == action.ID {
			log[i] = *action
			return nil
		}
	}
	return fmt.Errorf("action not found: %s", action.ID)
}

func (s *MemStore) GetAction(_ context.Context, threadID, actionID uuid.UUID) (*types.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.actions[threadID] {
		if a.ID == actionID {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemStore) ListActions(_ context.Context, threadID uuid.UUID) ([]types.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Action(nil), s.actions[threadID]...), nil
}

func (s *MemStore) Get(_ context.Context, entryID string) (*types.CanvasEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.canvas[entryID]
	if !ok {
		return nil, nil
	}
	out := cloneEntry(&e)
	return &out, nil
}

func (s *MemStore) List(_ context.Context) ([]types.CanvasEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.CanvasEntry, 0, len(s.canvas))
	for _, e := range s.canvas {
		out = append(out, cloneEntry(&e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) Create(_ context.Context, entry *types.CanvasEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.canvas[entry.ID]; exists {
		return &engine.EntryExistsError{EntryID: entry.ID}
	}
	s.canvas[entry.ID] = cloneEntry(entry)
	return nil
}

func (s *MemStore) Merge(_ context.Context, update types.CanvasUpdate) (*types.CanvasEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.canvas[update.EntryID]
	if !ok {
		entry = *engine.NewBaselineEntry(update.EntryID, update.Title)
	}
	engine.ApplyCanvasUpdate(&entry, update)
	s.canvas[update.EntryID] = entry
	out := cloneEntry(&entry)
	return &out, nil
}

func (s *MemStore) CreateCampaign(_ context.Context, campaign *types.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.campaigns[campaign.ID]; exists {
		return fmt.Errorf("campaign already exists: %s", campaign.ID)
	}
	s.campaigns[campaign.ID] = *campaign
	return nil
}

func (s *MemStore) GetCampaign(_ context.Context, campaignID string) (*types.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return nil, nil
	}
	out := c
	return &out, nil
}

func cloneThread(t *types.Thread) types.Thread {
	out := *t
	out.CanvasRefs = append([]string(nil), t.CanvasRefs...)
	if t.CurrentActionID != nil {
		id := *t.CurrentActionID
		out.CurrentActionID = &id
	}
	if t.Segment != nil {
		seg := *t.Segment
		out.Segment = &seg
	}
	return out
}

func cloneEntry(e *types.CanvasEntry) types.CanvasEntry {
	out := *e
	out.EvidenceRefs = append([]string(nil), e.EvidenceRefs...)
	return out
}
