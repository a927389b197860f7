package engine

import (
	"time"

	"github.com/evanhsu/dealthread/internal/types"
)

// Baseline values for canvas entries auto-created by a merge against an
// entry that does not exist yet (first-ever thread touching an assumption).
const (
	BaselineConfidence = 0.5
	BaselineStatus     = types.CanvasStatusUntested
)

// NewBaselineEntry builds the untested entry a merge auto-creates on first
// reference.
func NewBaselineEntry(entryID, title string) *types.CanvasEntry {
	return &types.CanvasEntry{
		ID:          entryID,
		Title:       title,
		Status:      BaselineStatus,
		Confidence:  BaselineConfidence,
		Version:     0,
		LastUpdated: time.Now().UTC(),
	}
}

// ApplyCanvasUpdate folds one update into an entry in place and reports
// whether anything changed. It is the single merge rule shared by every
// CanvasStore implementation: replaying the same (entry, thread) pair is a
// no-op, so reconciliation can be re-run safely. Callers own the
// surrounding compare-and-swap or transaction.
func ApplyCanvasUpdate(entry *types.CanvasEntry, update types.CanvasUpdate) bool {
	if entry.HasEvidence(update.EvidenceThreadID) {
		return false
	}
	entry.EvidenceRefs = append(entry.EvidenceRefs, update.EvidenceThreadID)
	if update.Verdict != types.VerdictInconclusive {
		entry.Confidence = clampConfidence(entry.Confidence + update.ConfidenceDelta)
		if update.NewStatus != "" {
			entry.Status = update.NewStatus
		}
	}
	entry.Version++
	entry.LastUpdated = time.Now().UTC()
	return true
}

func clampConfidence(c float64) float64 {
	if c > 1.0 {
		return 1.0
	}
	if c < 0.0 {
		return 0.0
	}
	return c
}
