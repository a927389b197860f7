package types

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// StageRecord is the immutable document persisted for a completed stage,
// keyed by (thread_id, stage). Stage 5 is represented by the action log
// instead of a single record; its StageRecord only marks completion.
type StageRecord struct {
	ThreadID  uuid.UUID       `json:"thread_id"`
	Stage     int             `json:"stage"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// DecisionVerdict is the Stage-4 go/no-go outcome.
type DecisionVerdict string

const (
	VerdictPursue DecisionVerdict = "PURSUE"
	VerdictPass   DecisionVerdict = "PASS"
)

// DealOutcome is the Stage-6 result classification.
type DealOutcome string

const (
	OutcomeDealWon    DealOutcome = "deal_won"
	OutcomeDealLost   DealOutcome = "deal_lost"
	OutcomeNoDecision DealOutcome = "no_decision"
)

// InputPayload is the Stage-1 record: the external event that opened the
// thread, with the entity's observable attributes.
type InputPayload struct {
	Source     string         `json:"source" validate:"required"`
	Entity     map[string]any `json:"entity" validate:"required"`
	ContactRef string         `json:"contact_ref,omitempty"`
	Notes      string         `json:"notes,omitempty"`
}

// HypothesisDirection relates a hypothesis to the deal outcome. A positive
// hypothesis is validated by a won deal; a negative one by a lost deal.
type HypothesisDirection string

const (
	DirectionPositive HypothesisDirection = "positive"
	DirectionNegative HypothesisDirection = "negative"
)

// Hypothesis is one Stage-2 assumption to be tested by the thread's outcome.
// EntryID references a canvas entry; an empty EntryID with a ProposedTitle
// proposes a brand-new entry at reconciliation time.
type Hypothesis struct {
	EntryID       string              `json:"entry_id,omitempty"`
	ProposedTitle string              `json:"proposed_title,omitempty"`
	Statement     string              `json:"statement" validate:"required"`
	Direction     HypothesisDirection `json:"direction" validate:"required,oneof=positive negative"`
}

// HypothesisPayload is the Stage-2 record.
type HypothesisPayload struct {
	Hypotheses []Hypothesis `json:"hypotheses" validate:"required,min=1,dive"`
}

// ImplicationPayload is the Stage-3 record: the computed business case.
type ImplicationPayload struct {
	ROI           float64            `json:"roi" validate:"required"`
	CostBreakdown map[string]float64 `json:"cost_breakdown" validate:"required,min=1"`
	Notes         string             `json:"notes,omitempty"`
}

// DecisionPayload is the Stage-4 record. A PASS verdict terminates the
// thread: there is nothing to validate from a deal that never started.
type DecisionPayload struct {
	Verdict   DecisionVerdict `json:"verdict" validate:"required,oneof=PURSUE PASS"`
	Rationale string          `json:"rationale,omitempty"`
}

// ActionsKickoffPayload enters Stage 5 and names the first action type to
// dispatch. Subsequent progression is driven by the successor table.
type ActionsKickoffPayload struct {
	InitialAction string `json:"initial_action" validate:"required"`
}

// ResultsPayload is the Stage-6 record. It is normally written by the
// dispatcher when the terminal action resolves.
type ResultsPayload struct {
	Outcome     DealOutcome        `json:"outcome" validate:"required,oneof=deal_won deal_lost no_decision"`
	FinalAction string             `json:"final_action,omitempty"`
	FinalResult string             `json:"final_result,omitempty"`
	Summary     string             `json:"summary,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// LearningPayload is the terminal Stage-7 record.
type LearningPayload struct {
	Updates          []CanvasUpdate `json:"updates,omitempty"`
	Abandoned        bool           `json:"abandoned,omitempty"`
	AbandonReason    string         `json:"abandon_reason,omitempty"`
	NoLearning       bool           `json:"no_learning,omitempty"`
	ResultsFinalized bool           `json:"results_finalized"`
}

var validate = validator.New()

// Validate validates the InputPayload using the validator.
func (p *InputPayload) Validate() error { return validate.Struct(p) }

// Validate validates the HypothesisPayload using the validator.
func (p *HypothesisPayload) Validate() error { return validate.Struct(p) }

// Validate validates the ImplicationPayload using the validator.
func (p *ImplicationPayload) Validate() error { return validate.Struct(p) }

// Validate validates the DecisionPayload using the validator.
func (p *DecisionPayload) Validate() error { return validate.Struct(p) }

// Validate validates the ActionsKickoffPayload using the validator.
func (p *ActionsKickoffPayload) Validate() error { return validate.Struct(p) }

// Validate validates the ResultsPayload using the validator.
func (p *ResultsPayload) Validate() error { return validate.Struct(p) }

// Validate validates the LearningPayload using the validator.
func (p *LearningPayload) Validate() error { return validate.Struct(p) }

// DecodeHypotheses unmarshals a Stage-2 record payload.
func DecodeHypotheses(rec *StageRecord) (*HypothesisPayload, error) {
	var p HypothesisPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeResults unmarshals a Stage-6 record payload.
func DecodeResults(rec *StageRecord) (*ResultsPayload, error) {
	var p ResultsPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeLearning unmarshals a Stage-7 record payload.
func DecodeLearning(rec *StageRecord) (*LearningPayload, error) {
	var p LearningPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
