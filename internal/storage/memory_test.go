package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/types"
)

var (
	_ engine.ThreadStore   = (*MemStore)(nil)
	_ engine.CanvasStore   = (*MemStore)(nil)
	_ engine.CampaignStore = (*MemStore)(nil)
	_ engine.ThreadStore   = (*Store)(nil)
	_ engine.CanvasStore   = (*Store)(nil)
	_ engine.CampaignStore = (*Store)(nil)
)

func TestMemStoreReturnsCopies(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	thread := &types.Thread{ID: uuid.New(), Kind: types.KindDeal, CanvasRefs: []string{"a"}}
	require.NoError(t, s.CreateThread(ctx, thread))

	got, err := s.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	got.CanvasRefs[0] = "mutated"
	got.Stage = 5

	again, err := s.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", again.CanvasRefs[0], "callers must not reach the stored copy")
	assert.Equal(t, 0, again.Stage)
}

func TestMemStoreConcurrentMerges(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	const workers = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Merge(ctx, types.CanvasUpdate{
				Op:               types.CanvasOpMerge,
				EntryID:          "contended",
				Title:            "Contended entry",
				Verdict:          types.VerdictValidated,
				NewStatus:        types.CanvasStatusValidated,
				ConfidenceDelta:  engine.ValidatedDelta,
				EvidenceThreadID: uuid.NewString(),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entry, err := s.Get(ctx, "contended")
	require.NoError(t, err)
	require.NotNil(t, entry)
	// 0.5 baseline plus fifty increments, clamped.
	assert.Equal(t, 1.0, entry.Confidence)
	assert.Equal(t, workers, entry.Version)
	assert.Len(t, entry.EvidenceRefs, workers)
}

func TestMemStoreConcurrentMergeReplay(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	update := types.CanvasUpdate{
		Op:               types.CanvasOpMerge,
		EntryID:          "replayed",
		Verdict:          types.VerdictValidated,
		NewStatus:        types.CanvasStatusValidated,
		ConfidenceDelta:  engine.ValidatedDelta,
		EvidenceThreadID: uuid.NewString(),
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Merge(ctx, update)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entry, err := s.Get(ctx, "replayed")
	require.NoError(t, err)
	// One thread's evidence applies exactly once no matter how many replays.
	assert.InDelta(t, 0.60, entry.Confidence, 1e-9)
	assert.Equal(t, 1, entry.Version)
	assert.Len(t, entry.EvidenceRefs, 1)
}

func TestMemStoreStageRecordImmutable(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	threadID := uuid.New()

	rec := &types.StageRecord{ThreadID: threadID, Stage: 1, Payload: []byte(`{"source":"referral"}`)}
	require.NoError(t, s.SaveStageRecord(ctx, rec))
	assert.Error(t, s.SaveStageRecord(ctx, rec), "stage records are write-once")

	got, err := s.GetStageRecord(ctx, threadID, 1)
	require.NoError(t, err)
	got.Payload[0] = 'X'

	again, err := s.GetStageRecord(ctx, threadID, 1)
	require.NoError(t, err)
	assert.Equal(t, byte('{'), again.Payload[0])
}
