package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestThread() *types.Thread {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Thread{
		ID:   uuid.New(),
		Kind: types.KindDeal,
		Segment: &types.SegmentBinding{
			SegmentID:        "smb-saas",
			MatchScore:       0.85,
			MaterialsVersion: "2024-06",
		},
		LeadSource: "referral",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestStoreThreadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	thread := newTestThread()
	require.NoError(t, store.CreateThread(ctx, thread))

	got, err := store.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, thread.ID, got.ID)
	assert.Equal(t, types.KindDeal, got.Kind)
	assert.Equal(t, 0, got.Stage)
	require.NotNil(t, got.Segment)
	assert.Equal(t, "smb-saas", got.Segment.SegmentID)
	assert.InDelta(t, 0.85, got.Segment.MatchScore, 1e-9)
	assert.Equal(t, "referral", got.LeadSource)
	assert.False(t, got.Terminal)

	actionID := uuid.New()
	got.Stage = 5
	got.CurrentActionID = &actionID
	got.CanvasRefs = []string{"entry-1"}
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.UpdateThread(ctx, got))

	updated, err := store.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Stage)
	require.NotNil(t, updated.CurrentActionID)
	assert.Equal(t, actionID, *updated.CurrentActionID)
	assert.Equal(t, []string{"entry-1"}, updated.CanvasRefs)
}

func TestStoreGetThreadMissing(t *testing.T) {
	store := openTestStore(t)

	got, err := store.GetThread(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreListThreadsFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	deal := newTestThread()
	require.NoError(t, store.CreateThread(ctx, deal))

	response := newTestThread()
	response.ID = uuid.New()
	response.Kind = types.KindCampaignResponse
	response.Segment = nil
	response.CreatedAt = deal.CreatedAt.Add(time.Second)
	require.NoError(t, store.CreateThread(ctx, response))

	all, err := store.ListThreads(ctx, types.ThreadFilters{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, deal.ID, all[0].ID, "threads are ordered by creation time")

	deals, err := store.ListThreads(ctx, types.ThreadFilters{Kind: types.KindDeal})
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, deal.ID, deals[0].ID)
	assert.Nil(t, all[1].Segment)

	limited, err := store.ListThreads(ctx, types.ThreadFilters{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStoreStageRecordsAppendOnly(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	thread := newTestThread()
	require.NoError(t, store.CreateThread(ctx, thread))

	rec := &types.StageRecord{
		ThreadID:  thread.ID,
		Stage:     1,
		Payload:   []byte(`{"source":"referral","entity":"Acme"}`),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveStageRecord(ctx, rec))

	err := store.SaveStageRecord(ctx, rec)
	assert.Error(t, err, "a stage record must never be overwritten")

	got, err := store.GetStageRecord(ctx, thread.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, string(rec.Payload), string(got.Payload))

	missing, err := store.GetStageRecord(ctx, thread.ID, 2)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreActionOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	thread := newTestThread()
	require.NoError(t, store.CreateThread(ctx, thread))

	first := &types.Action{
		ID:        uuid.New(),
		ThreadID:  thread.ID,
		Type:      "qualification",
		Status:    types.ActionStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	second := &types.Action{
		ID:        uuid.New(),
		ThreadID:  thread.ID,
		Type:      "demo",
		Status:    types.ActionStatusPending,
		CreatedAt: first.CreatedAt, // same timestamp, seq still orders them
	}
	require.NoError(t, store.CreateAction(ctx, first))
	require.NoError(t, store.CreateAction(ctx, second))

	first.Status = types.ActionStatusCompleted
	first.Result = "qualified"
	completedAt := time.Now().UTC()
	first.CompletedAt = &completedAt
	require.NoError(t, store.UpdateAction(ctx, first))

	actions, err := store.ListActions(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, first.ID, actions[0].ID)
	assert.Equal(t, second.ID, actions[1].ID)
	assert.Equal(t, "qualified", actions[0].Result)
	require.NotNil(t, actions[0].CompletedAt)

	got, err := store.GetAction(ctx, thread.ID, second.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "demo", got.Type)
}

func TestStoreCanvasCreateDuplicate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entry := engine.NewBaselineEntry("pricing-objection", "Price is the main blocker for SMB")
	require.NoError(t, store.Create(ctx, entry))

	err := store.Create(ctx, entry)
	var exists *engine.EntryExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "pricing-objection", exists.EntryID)
}

func TestStoreCanvasMerge(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	threadID := uuid.New().String()

	update := types.CanvasUpdate{
		Op:               types.CanvasOpMerge,
		EntryID:          "pricing-objection",
		Title:            "Price is the main blocker for SMB",
		Verdict:          types.VerdictValidated,
		NewStatus:        types.CanvasStatusValidated,
		ConfidenceDelta:  engine.ValidatedDelta,
		EvidenceThreadID: threadID,
	}

	// Missing entry: merge creates the untested baseline, then applies.
	merged, err := store.Merge(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, types.CanvasStatusValidated, merged.Status)
	assert.InDelta(t, 0.60, merged.Confidence, 1e-9)
	assert.Equal(t, 1, merged.Version)
	assert.Contains(t, merged.EvidenceRefs, threadID)

	// Same evidence thread again: no-op.
	again, err := store.Merge(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Version)
	assert.InDelta(t, 0.60, again.Confidence, 1e-9)

	// A second thread challenging the entry moves it back down.
	challenge := update
	challenge.Verdict = types.VerdictChallenged
	challenge.NewStatus = types.CanvasStatusChallenged
	challenge.ConfidenceDelta = engine.ChallengedDelta
	challenge.EvidenceThreadID = uuid.New().String()
	final, err := store.Merge(ctx, challenge)
	require.NoError(t, err)
	assert.Equal(t, types.CanvasStatusChallenged, final.Status)
	assert.InDelta(t, 0.45, final.Confidence, 1e-9)
	assert.Equal(t, 2, final.Version)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStoreCampaignRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	campaign := &types.Campaign{
		ID:   "q3-smb-outreach",
		Name: "Q3 SMB outreach",
		Segment: types.SegmentBinding{
			SegmentID:        "smb-saas",
			MatchScore:       1.0,
			MaterialsVersion: "2024-06",
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.CreateCampaign(ctx, campaign))

	got, err := store.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, campaign.Name, got.Name)
	assert.Equal(t, "smb-saas", got.Segment.SegmentID)

	missing, err := store.GetCampaign(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
