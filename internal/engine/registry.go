package engine

import (
	"time"

	"github.com/evanhsu/dealthread/internal/types"
)

// StageComplete marks a result that terminates Stage 5 in a successor table.
// Mapping a result to it is explicit: every legal result has an entry, so
// the whole branch structure is enumerable and testable in isolation.
const StageComplete = ""

// ActionDescriptor defines the static metadata for one action type. The
// Successors table is the single source of truth for action-to-action
// branching; no other component keys conditional logic on type or result
// strings.
type ActionDescriptor struct {
	Type             string
	DurationEstimate time.Duration
	HumanRequired    bool
	Skill            string
	Kinds            []types.ThreadKind
	LegalResults     []string
	Successors       map[string]string
}

// LegalFor reports whether the action type is part of the subset allowed
// for a thread kind.
func (d ActionDescriptor) LegalFor(kind types.ThreadKind) bool {
	for _, k := range d.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ResultLegal reports whether a result string is in the descriptor's legal
// result set.
func (d ActionDescriptor) ResultLegal(result string) bool {
	for _, r := range d.LegalResults {
		if r == result {
			return true
		}
	}
	return false
}

// Registry is the read-only catalog of action types.
type Registry struct {
	descriptors map[string]ActionDescriptor
}

// NewRegistry builds a registry from a set of descriptors.
func NewRegistry(descriptors ...ActionDescriptor) *Registry {
	m := make(map[string]ActionDescriptor, len(descriptors))
	for _, d := range descriptors {
		m[d.Type] = d
	}
	return &Registry{descriptors: m}
}

// Descriptor looks up an action type. Unknown types are a configuration
// error, not a runtime condition to recover from.
func (r *Registry) Descriptor(actionType string) (ActionDescriptor, error) {
	d, ok := r.descriptors[actionType]
	if !ok {
		return ActionDescriptor{}, &UnknownActionTypeError{Type: actionType}
	}
	return d, nil
}

// Types returns all registered action types.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.descriptors))
	for t := range r.descriptors {
		out = append(out, t)
	}
	return out
}

// TerminalOutcome maps a stage-terminating (type, result) pair to the
// Stage-6 outcome the dispatcher records.
func TerminalOutcome(result string) types.DealOutcome {
	if result == "won" {
		return types.OutcomeDealWon
	}
	return types.OutcomeDealLost
}

var dealKinds = []types.ThreadKind{types.KindDeal}
var responseKinds = []types.ThreadKind{types.KindCampaignResponse, types.KindOther}
var allKinds = []types.ThreadKind{types.KindDeal, types.KindCampaignResponse, types.KindOther}

// DefaultRegistry returns the built-in action catalog for sales deal
// threads and campaign-response follow-ups.
func DefaultRegistry() *Registry {
	return NewRegistry(
		ActionDescriptor{
			Type:             "lead_intake",
			DurationEstimate: time.Hour,
			HumanRequired:    false,
			Skill:            "sales_ops",
			Kinds:            dealKinds,
			LegalResults:     []string{"ready", "unresponsive"},
			Successors: map[string]string{
				"ready":        "qualification",
				"unresponsive": StageComplete,
			},
		},
		ActionDescriptor{
			Type:             "qualification",
			DurationEstimate: 2 * time.Hour,
			HumanRequired:    true,
			Skill:            "sales_call",
			Kinds:            allKinds,
			LegalResults:     []string{"qualified", "disqualified"},
			Successors: map[string]string{
				"qualified":    "demo",
				"disqualified": StageComplete,
			},
		},
		ActionDescriptor{
			Type:             "demo",
			DurationEstimate: 4 * time.Hour,
			HumanRequired:    true,
			Skill:            "sales_engineering",
			Kinds:            allKinds,
			LegalResults:     []string{"interested", "declined"},
			Successors: map[string]string{
				"interested": "pilot",
				"declined":   StageComplete,
			},
		},
		ActionDescriptor{
			Type:             "pilot",
			DurationEstimate: 14 * 24 * time.Hour,
			HumanRequired:    true,
			Skill:            "customer_success",
			Kinds:            allKinds,
			LegalResults:     []string{"success", "failure"},
			Successors: map[string]string{
				"success": "close",
				"failure": StageComplete,
			},
		},
		ActionDescriptor{
			Type:             "close",
			DurationEstimate: 7 * 24 * time.Hour,
			HumanRequired:    true,
			Skill:            "sales_call",
			Kinds:            allKinds,
			LegalResults:     []string{"won", "lost"},
			Successors: map[string]string{
				"won":  StageComplete,
				"lost": StageComplete,
			},
		},
		ActionDescriptor{
			Type:             "followup",
			DurationEstimate: 24 * time.Hour,
			HumanRequired:    false,
			Skill:            "sales_ops",
			Kinds:            responseKinds,
			LegalResults:     []string{"engaged", "no_reply"},
			Successors: map[string]string{
				"engaged":  "qualification",
				"no_reply": StageComplete,
			},
		},
	)
}
