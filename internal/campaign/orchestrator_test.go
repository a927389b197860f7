package campaign_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanhsu/dealthread/internal/campaign"
	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/matching"
	"github.com/evanhsu/dealthread/internal/storage"
	"github.com/evanhsu/dealthread/internal/types"
)

func newOrchestrator(t *testing.T) (*campaign.Orchestrator, *storage.MemStore) {
	t.Helper()
	store := storage.NewMemStore()
	eng := engine.New(store, store, nil, nil)
	matcher := matching.NewMatcher([]types.Segment{
		{
			ID:   "smb-saas",
			Name: "SMB SaaS",
			Predicates: []types.Predicate{
				{Attribute: "industry", Op: types.OpEquals, Value: "saas"},
			},
			MaterialsVersion: "2024-06",
		},
	}, matching.DefaultThreshold, nil)
	return campaign.NewOrchestrator(eng, store, matcher, nil), store
}

func TestCreateCampaignFreezesBinding(t *testing.T) {
	orch, store := newOrchestrator(t)
	ctx := context.Background()

	c, err := orch.CreateCampaign(ctx, "Q3 outreach", "smb-saas")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "smb-saas", c.Segment.SegmentID)
	assert.InDelta(t, 1.0, c.Segment.MatchScore, 1e-9)
	assert.Equal(t, "2024-06", c.Segment.MaterialsVersion)

	stored, err := store.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, c.Segment, stored.Segment)
}

func TestCreateCampaignUnknownSegment(t *testing.T) {
	orch, _ := newOrchestrator(t)

	_, err := orch.CreateCampaign(context.Background(), "bad", "nonexistent")
	assert.Error(t, err)
}

func TestHandleResponseSpawnsThread(t *testing.T) {
	orch, store := newOrchestrator(t)
	ctx := context.Background()

	c, err := orch.CreateCampaign(ctx, "Q3 outreach", "smb-saas")
	require.NoError(t, err)

	thread, err := orch.HandleResponse(ctx, c.ID, types.CampaignResponse{
		Sentiment:  types.SentimentInterested,
		Entity:     map[string]any{"name": "Acme", "industry": "saas"},
		ContactRef: "jo@acme.example",
		Notes:      "asked for pricing",
	})
	require.NoError(t, err)
	require.NotNil(t, thread)

	// The thread inherits the campaign's binding verbatim, is attributed to
	// the campaign, and lands at Stage 1 with the response as input.
	assert.Equal(t, types.KindDeal, thread.Kind)
	require.NotNil(t, thread.Segment)
	assert.Equal(t, c.Segment, *thread.Segment)
	assert.Equal(t, c.ID, thread.LeadSource)
	assert.Equal(t, types.StageInput, thread.Stage)

	rec, err := store.GetStageRecord(ctx, thread.ID, types.StageInput)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, string(rec.Payload), "campaign:"+c.ID)
	assert.Contains(t, string(rec.Payload), "jo@acme.example")
}

func TestHandleResponseNonInterested(t *testing.T) {
	orch, store := newOrchestrator(t)
	ctx := context.Background()

	c, err := orch.CreateCampaign(ctx, "Q3 outreach", "smb-saas")
	require.NoError(t, err)

	for _, sentiment := range []types.ResponseSentiment{types.SentimentNotNow, types.SentimentUnsubscribe} {
		thread, err := orch.HandleResponse(ctx, c.ID, types.CampaignResponse{Sentiment: sentiment})
		require.NoError(t, err)
		assert.Nil(t, thread)
	}

	threads, err := store.ListThreads(ctx, types.ThreadFilters{})
	require.NoError(t, err)
	assert.Empty(t, threads)

	stats := orch.CampaignStats(c.ID)
	assert.Equal(t, campaign.Stats{NotNow: 1, Unsubscribed: 1}, stats)
}

func TestHandleResponseValidation(t *testing.T) {
	orch, _ := newOrchestrator(t)
	ctx := context.Background()

	c, err := orch.CreateCampaign(ctx, "Q3 outreach", "smb-saas")
	require.NoError(t, err)

	_, err = orch.HandleResponse(ctx, c.ID, types.CampaignResponse{Sentiment: "enthused"})
	assert.Error(t, err)

	_, err = orch.HandleResponse(ctx, "no-such-campaign", types.CampaignResponse{Sentiment: types.SentimentInterested})
	var notFound *campaign.CampaignNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestHandleResponsesFanOut(t *testing.T) {
	orch, store := newOrchestrator(t)
	ctx := context.Background()

	c, err := orch.CreateCampaign(ctx, "Q3 outreach", "smb-saas")
	require.NoError(t, err)

	responses := make([]types.CampaignResponse, 0, 25)
	for i := range 20 {
		responses = append(responses, types.CampaignResponse{
			Sentiment: types.SentimentInterested,
			Entity:    map[string]any{"name": fmt.Sprintf("prospect-%d", i)},
		})
	}
	for range 3 {
		responses = append(responses, types.CampaignResponse{Sentiment: types.SentimentNotNow})
	}
	for range 2 {
		responses = append(responses, types.CampaignResponse{Sentiment: types.SentimentUnsubscribe})
	}

	threads, err := orch.HandleResponses(ctx, c.ID, responses)
	require.NoError(t, err)
	assert.Len(t, threads, 20)

	// Every spawned thread is an independent Stage-1 deal thread.
	seen := make(map[string]bool, len(threads))
	for _, thread := range threads {
		assert.False(t, seen[thread.ID.String()], "duplicate thread")
		seen[thread.ID.String()] = true
		assert.Equal(t, types.StageInput, thread.Stage)
		assert.Equal(t, c.ID, thread.LeadSource)
	}

	stored, err := store.ListThreads(ctx, types.ThreadFilters{LeadSource: c.ID})
	require.NoError(t, err)
	assert.Len(t, stored, 20)

	stats := orch.CampaignStats(c.ID)
	assert.Equal(t, campaign.Stats{Interested: 20, NotNow: 3, Unsubscribed: 2}, stats)
}

func TestCampaignStatsUnknownCampaign(t *testing.T) {
	orch, _ := newOrchestrator(t)
	assert.Equal(t, campaign.Stats{}, orch.CampaignStats("never-seen"))
}
