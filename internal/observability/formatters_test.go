package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/evanhsu/dealthread/internal/types"
)

func TestPrintThread(t *testing.T) {
	var buf strings.Builder
	p := NewPrinter(&buf)

	p.PrintThread(&types.Thread{
		ID:    uuid.New(),
		Kind:  types.KindDeal,
		Stage: 5,
		Segment: &types.SegmentBinding{
			SegmentID:  "smb-saas",
			MatchScore: 0.82,
		},
		LeadSource: "referral",
		CreatedAt:  time.Now(),
	})

	out := buf.String()
	assert.Contains(t, out, "deal")
	assert.Contains(t, out, "actions")
	assert.Contains(t, out, "smb-saas")
	assert.Contains(t, out, "referral")
}

func TestPrintThreadNil(t *testing.T) {
	var buf strings.Builder
	NewPrinter(&buf).PrintThread(nil)
	assert.Empty(t, buf.String())
}

func TestPrintActions(t *testing.T) {
	var buf strings.Builder
	p := NewPrinter(&buf)

	p.PrintActions([]types.Action{
		{Type: "qualification", Status: types.ActionStatusCompleted, Result: "qualified"},
		{Type: "demo", Status: types.ActionStatusPending},
	})

	out := buf.String()
	assert.Contains(t, out, "1. qualification [completed] -> qualified")
	assert.Contains(t, out, "2. demo [pending]")
}

func TestPrintCanvasCapsList(t *testing.T) {
	var buf strings.Builder
	p := NewPrinter(&buf)

	entries := make([]types.CanvasEntry, 8)
	for i := range entries {
		entries[i] = types.CanvasEntry{ID: "entry", Status: "untested", Confidence: 0.5}
	}
	p.PrintCanvas(entries)

	assert.Contains(t, buf.String(), "and 3 more")
}
