package types

import "time"

// CanvasStatus constants for the lifecycle of a shared assumption.
const (
	CanvasStatusUntested   = "untested"
	CanvasStatusValidated  = "validated"
	CanvasStatusChallenged = "challenged"
)

// CanvasEntry is a long-lived, globally shared business assumption. Entries
// are mutated only through CanvasUpdate merges.
type CanvasEntry struct {
	ID           string    `json:"entry_id"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	Confidence   float64   `json:"confidence"`
	EvidenceRefs []string  `json:"evidence_refs,omitempty"`
	Version      int       `json:"version"`
	LastUpdated  time.Time `json:"last_updated"`
}

// HasEvidence reports whether the thread already contributed evidence to
// this entry. Merges from a thread already present are no-ops.
func (e *CanvasEntry) HasEvidence(threadID string) bool {
	for _, ref := range e.EvidenceRefs {
		if ref == threadID {
			return true
		}
	}
	return false
}

// Verdict is the reconciler's judgement of one hypothesis.
type Verdict string

const (
	VerdictValidated    Verdict = "VALIDATED"
	VerdictChallenged   Verdict = "CHALLENGED"
	VerdictInconclusive Verdict = "INCONCLUSIVE"
)

// CanvasUpdateOp distinguishes merges into existing entries from proposals
// of brand-new ones. Creates are never silently merged into existing entries.
type CanvasUpdateOp string

const (
	CanvasOpMerge  CanvasUpdateOp = "merge"
	CanvasOpCreate CanvasUpdateOp = "create"
)

// CanvasUpdate is the pure-data output of reconciliation, applied by a
// CanvasStore under the idempotent merge rule keyed on
// (entry_id, evidence_thread_id).
type CanvasUpdate struct {
	Op               CanvasUpdateOp `json:"op"`
	EntryID          string         `json:"entry_id"`
	Title            string         `json:"title,omitempty"`
	Verdict          Verdict        `json:"verdict"`
	NewStatus        string         `json:"new_status,omitempty"`
	ConfidenceDelta  float64        `json:"confidence_delta,omitempty"`
	EvidenceThreadID string         `json:"evidence_thread_id"`
}
