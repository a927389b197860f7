// Package types provides type definitions for structured data used throughout the thread engine.
package types

import (
	"time"

	"github.com/google/uuid"
)

// ThreadKind determines which subset of action types is legal for a thread.
type ThreadKind string

const (
	KindDeal             ThreadKind = "deal"
	KindCampaignResponse ThreadKind = "campaign_response"
	KindOther            ThreadKind = "other"
)

// Stage numbers for the fixed 7-stage topology.
const (
	StageInput       = 1
	StageHypothesis  = 2
	StageImplication = 3
	StageDecision    = 4
	StageActions     = 5
	StageResults     = 6
	StageLearning    = 7
)

// StageName returns the human-readable name for a stage number.
func StageName(stage int) string {
	switch stage {
	case StageInput:
		return "input"
	case StageHypothesis:
		return "hypothesis"
	case StageImplication:
		return "implication"
	case StageDecision:
		return "decision"
	case StageActions:
		return "actions"
	case StageResults:
		return "results"
	case StageLearning:
		return "learning"
	default:
		return "unknown"
	}
}

// SegmentBinding is the frozen snapshot of a segment match taken at thread
// creation. Later edits to the segment catalog never alter existing threads.
type SegmentBinding struct {
	SegmentID        string  `json:"segment_id"`
	MatchScore       float64 `json:"icp_match_score"`
	MaterialsVersion string  `json:"materials_version,omitempty"`
}

// Thread is one instance of the 7-stage pipeline tracking a single business
// decision.
type Thread struct {
	ID              uuid.UUID       `json:"thread_id"`
	Kind            ThreadKind      `json:"kind"`
	Stage           int             `json:"stage"`
	Segment         *SegmentBinding `json:"segment,omitempty"`
	LeadSource      string          `json:"lead_source,omitempty"`
	CanvasRefs      []string        `json:"canvas_refs,omitempty"`
	CurrentActionID *uuid.UUID      `json:"current_action_id,omitempty"`
	Terminal        bool            `json:"terminal"`
	Archived        bool            `json:"archived"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ThreadFilters holds optional filters for listing threads.
type ThreadFilters struct {
	Kind       ThreadKind
	Stage      int
	SegmentID  string
	LeadSource string
	Archived   *bool
	Limit      int
}
