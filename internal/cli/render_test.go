package cli

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/evanhsu/dealthread/internal/campaign"
	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/types"
)

func TestRenderThread(t *testing.T) {
	actionID := uuid.New()
	thread := &types.Thread{
		ID:    uuid.New(),
		Kind:  types.KindDeal,
		Stage: types.StageActions,
		Segment: &types.SegmentBinding{
			SegmentID:  "smb-saas",
			MatchScore: 0.83,
		},
		LeadSource:      "referral",
		CurrentActionID: &actionID,
		CreatedAt:       time.Now(),
	}

	out := RenderThread(thread)
	assert.Contains(t, out, thread.ID.String())
	assert.Contains(t, out, "deal")
	assert.Contains(t, out, "5 (actions)")
	assert.Contains(t, out, "smb-saas (score 0.83)")
	assert.Contains(t, out, actionID.String())
	assert.NotContains(t, out, "terminal")
}

func TestRenderThreadTerminal(t *testing.T) {
	thread := &types.Thread{
		ID:         uuid.New(),
		Kind:       types.KindDeal,
		Stage:      types.StageLearning,
		Terminal:   true,
		CanvasRefs: []string{"entry-a", "entry-b"},
	}

	out := RenderThread(thread)
	assert.Contains(t, out, "terminal")
	assert.Contains(t, out, "entry-a, entry-b")
}

func TestRenderActions(t *testing.T) {
	actions := []types.Action{
		{Type: "qualification", Status: types.ActionStatusCompleted, Result: "qualified"},
		{Type: "demo", Status: types.ActionStatusPending, HumanRequired: true},
	}

	out := RenderActions(actions)
	assert.Contains(t, out, "1. qualification")
	assert.Contains(t, out, "-> qualified")
	assert.Contains(t, out, "2. demo")
	assert.Contains(t, out, "awaiting human")

	assert.Contains(t, RenderActions(nil), "no actions")
}

func TestRenderCanvas(t *testing.T) {
	entries := []types.CanvasEntry{
		{Title: "SMBs buy on price", Status: types.CanvasStatusValidated, Confidence: 0.7, EvidenceRefs: []string{"a", "b"}, Version: 2},
		{Title: "Pilots convert", Status: types.CanvasStatusUntested, Confidence: 0.5},
	}

	out := RenderCanvas(entries)
	assert.Contains(t, out, "SMBs buy on price")
	assert.Contains(t, out, "0.70")
	assert.Contains(t, out, "Pilots convert")

	assert.Contains(t, RenderCanvas(nil), "canvas is empty")
}

func TestRenderStats(t *testing.T) {
	out := RenderStats("c-1", campaign.Stats{Interested: 4, NotNow: 2, Unsubscribed: 1})
	assert.Contains(t, out, "Campaign c-1")
	assert.Contains(t, out, "4")
	assert.Contains(t, out, "2")
	assert.Contains(t, out, "1")
}

func TestRenderNextStep(t *testing.T) {
	assert.Contains(t, RenderNextStep(&engine.NextStep{StageComplete: true}), "stage complete")

	action := &types.Action{ID: uuid.New(), Type: "demo"}
	out := RenderNextStep(&engine.NextStep{NewAction: action})
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, action.ID.String())
}
