// Package campaign routes inbound campaign responses into new deal threads.
package campaign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/matching"
	"github.com/evanhsu/dealthread/internal/types"
)

// CampaignNotFoundError indicates an unknown campaign ID.
type CampaignNotFoundError struct {
	CampaignID string
}

func (e *CampaignNotFoundError) Error() string {
	return fmt.Sprintf("campaign not found: %s", e.CampaignID)
}

// Stats holds campaign-level response counters.
type Stats struct {
	Interested   int `json:"interested"`
	NotNow       int `json:"not_now"`
	Unsubscribed int `json:"unsubscribed"`
}

// Orchestrator manages many threads on behalf of campaigns. Every thread a
// campaign spawns inherits the campaign's segment verbatim; the matcher is
// consulted only when the campaign itself is created, never per response.
type Orchestrator struct {
	eng       *engine.Engine
	campaigns engine.CampaignStore
	matcher   *matching.Matcher
	logger    *zap.Logger

	mu    sync.Mutex
	stats map[string]*Stats
}

// NewOrchestrator builds a campaign orchestrator.
func NewOrchestrator(eng *engine.Engine, campaigns engine.CampaignStore, matcher *matching.Matcher, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		eng:       eng,
		campaigns: campaigns,
		matcher:   matcher,
		logger:    logger,
		stats:     make(map[string]*Stats),
	}
}

// CreateCampaign opens a campaign bound to a published segment. The
// binding snapshot is frozen here; later catalog edits do not touch it.
func (o *Orchestrator) CreateCampaign(ctx context.Context, name, segmentID string) (*types.Campaign, error) {
	segment, ok := o.matcher.Lookup(segmentID)
	if !ok {
		return nil, fmt.Errorf("unknown segment %q", segmentID)
	}
	campaign := &types.Campaign{
		ID:   uuid.New().String(),
		Name: name,
		Segment: types.SegmentBinding{
			SegmentID:        segment.ID,
			MatchScore:       1.0,
			MaterialsVersion: segment.MaterialsVersion,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := o.campaigns.CreateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	o.logger.Info("campaign created",
		zap.String("campaign_id", campaign.ID),
		zap.String("segment_id", segment.ID))
	return campaign, nil
}

// HandleResponse routes one inbound response. Interested responses spawn a
// deal thread inheriting the campaign's segment and advanced straight into
// Stage 1 with the response as input; everything else only moves counters.
func (o *Orchestrator) HandleResponse(ctx context.Context, campaignID string, response types.CampaignResponse) (*types.Thread, error) {
	if err := response.Validate(); err != nil {
		return nil, fmt.Errorf("invalid campaign response: %w", err)
	}
	campaign, err := o.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, &CampaignNotFoundError{CampaignID: campaignID}
	}

	if response.Sentiment != types.SentimentInterested {
		o.count(campaignID, response.Sentiment)
		o.logger.Debug("response recorded without thread",
			zap.String("campaign_id", campaignID),
			zap.String("sentiment", string(response.Sentiment)))
		return nil, nil
	}

	binding := campaign.Segment
	thread, err := o.eng.SM.CreateThread(ctx, types.KindDeal, &binding, campaign.ID)
	if err != nil {
		return nil, err
	}

	input := &types.InputPayload{
		Source:     fmt.Sprintf("campaign:%s", campaign.ID),
		Entity:     response.Entity,
		ContactRef: response.ContactRef,
		Notes:      response.Notes,
	}
	if input.Entity == nil {
		input.Entity = map[string]any{}
	}
	thread, err = o.eng.SM.Advance(ctx, thread.ID, types.StageInput, input)
	if err != nil {
		return nil, err
	}

	o.count(campaignID, response.Sentiment)
	o.logger.Info("response routed to new thread",
		zap.String("campaign_id", campaignID),
		zap.String("thread_id", thread.ID.String()),
		zap.String("segment_id", binding.SegmentID))
	return thread, nil
}

// HandleResponses fans a batch of responses out concurrently. Threads are
// independent units of work; a failure on one response does not block the
// others, but the first error is reported after the batch drains.
func (o *Orchestrator) HandleResponses(ctx context.Context, campaignID string, responses []types.CampaignResponse) ([]*types.Thread, error) {
	g, gctx := errgroup.WithContext(ctx)
	spawned := make([]*types.Thread, len(responses))
	for i, response := range responses {
		g.Go(func() error {
			thread, err := o.HandleResponse(gctx, campaignID, response)
			if err != nil {
				return err
			}
			spawned[i] = thread
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	threads := make([]*types.Thread, 0, len(spawned))
	for _, t := range spawned {
		if t != nil {
			threads = append(threads, t)
		}
	}
	return threads, nil
}

// CampaignStats returns the in-memory response counters for a campaign.
func (o *Orchestrator) CampaignStats(campaignID string) Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.stats[campaignID]; ok {
		return *s
	}
	return Stats{}
}

func (o *Orchestrator) count(campaignID string, sentiment types.ResponseSentiment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.stats[campaignID]
	if !ok {
		s = &Stats{}
		o.stats[campaignID] = s
	}
	switch sentiment {
	case types.SentimentInterested:
		s.Interested++
	case types.SentimentNotNow:
		s.NotNow++
	case types.SentimentUnsubscribe:
		s.Unsubscribed++
	}
}
