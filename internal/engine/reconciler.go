package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evanhsu/dealthread/internal/types"
)

// Confidence adjustments applied per verdict. VALIDATED nudges an entry up,
// CHALLENGED pulls it down harder; both are clamped to [0, 1] at merge time.
const (
	ValidatedDelta  = 0.10
	ChallengedDelta = -0.15
)

// proposedEntryNamespace seeds the deterministic IDs of canvas entries
// proposed by a thread, so replaying reconciliation regenerates the same
// create operations instead of minting duplicates.
var proposedEntryNamespace = uuid.MustParse("8d7f6c5a-1e2b-4a93-9c4e-0f5b8a7d6e3c")

// Reconciler folds a finished thread's Stage-2 hypotheses and Stage-6
// outcome back into the shared canvas. Reconcile is pure computation; the
// resulting updates are applied by a CanvasStore under its idempotent merge
// rule, so running the whole cycle twice yields the same canvas state.
type Reconciler struct {
	store  ThreadStore
	canvas CanvasStore
	sm     *StateMachine
	logger *zap.Logger
}

// NewReconciler builds a reconciler over the thread store and canvas store.
func NewReconciler(store ThreadStore, canvas CanvasStore, sm *StateMachine, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, canvas: canvas, sm: sm, logger: logger}
}

// Reconcile computes one canvas update per Stage-2 hypothesis from the
// Stage-6 outcome. It mutates nothing. Threads that ended abandoned or via
// a PASS short-circuit contribute no evidence, so their replay yields no
// updates.
func (r *Reconciler) Reconcile(ctx context.Context, threadID uuid.UUID) ([]types.CanvasUpdate, error) {
	learnRec, err := r.store.GetStageRecord(ctx, threadID, types.StageLearning)
	if err != nil {
		return nil, fmt.Errorf("failed to load learning record: %w", err)
	}
	if learnRec != nil {
		learning, err := types.DecodeLearning(learnRec)
		if err != nil {
			return nil, fmt.Errorf("failed to decode learning record: %w", err)
		}
		if learning.Abandoned || learning.NoLearning {
			return nil, nil
		}
	}

	hypRec, err := r.store.GetStageRecord(ctx, threadID, types.StageHypothesis)
	if err != nil {
		return nil, fmt.Errorf("failed to load hypothesis record: %w", err)
	}
	if hypRec == nil {
		return nil, nil
	}
	hypotheses, err := types.DecodeHypotheses(hypRec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hypothesis record: %w", err)
	}

	resRec, err := r.store.GetStageRecord(ctx, threadID, types.StageResults)
	if err != nil {
		return nil, fmt.Errorf("failed to load results record: %w", err)
	}
	outcome := types.OutcomeNoDecision
	if resRec != nil {
		results, err := types.DecodeResults(resRec)
		if err != nil {
			return nil, fmt.Errorf("failed to decode results record: %w", err)
		}
		outcome = results.Outcome
	}

	updates := make([]types.CanvasUpdate, 0, len(hypotheses.Hypotheses))
	for _, h := range hypotheses.Hypotheses {
		updates = append(updates, r.judge(threadID, h, outcome))
	}
	return updates, nil
}

// judge derives the verdict for one hypothesis. A positive hypothesis is
// validated by a won deal and challenged by a lost one; a negative
// hypothesis is the mirror image. Anything without a clear win/loss signal
// is inconclusive: no confidence movement, but the evidence reference is
// still appended for future sample-size growth.
func (r *Reconciler) judge(threadID uuid.UUID, h types.Hypothesis, outcome types.DealOutcome) types.CanvasUpdate {
	update := types.CanvasUpdate{
		Op:               types.CanvasOpMerge,
		EntryID:          h.EntryID,
		EvidenceThreadID: threadID.String(),
	}
	if h.EntryID == "" {
		// Untracked hypothesis surfaced by this thread: propose a distinct
		// create. The ID is derived from (thread, title) so replays are
		// stable.
		update.Op = types.CanvasOpCreate
		update.EntryID = uuid.NewSHA1(proposedEntryNamespace, []byte(threadID.String()+"/"+h.ProposedTitle)).String()
		update.Title = h.ProposedTitle
		if update.Title == "" {
			update.Title = h.Statement
		}
	}

	switch {
	case outcome == types.OutcomeDealWon && h.Direction == types.DirectionPositive,
		outcome == types.OutcomeDealLost && h.Direction == types.DirectionNegative:
		update.Verdict = types.VerdictValidated
		update.NewStatus = types.CanvasStatusValidated
		update.ConfidenceDelta = ValidatedDelta
	case outcome == types.OutcomeDealWon && h.Direction == types.DirectionNegative,
		outcome == types.OutcomeDealLost && h.Direction == types.DirectionPositive:
		update.Verdict = types.VerdictChallenged
		update.NewStatus = types.CanvasStatusChallenged
		update.ConfidenceDelta = ChallengedDelta
	default:
		update.Verdict = types.VerdictInconclusive
	}
	return update
}

// Apply pushes a batch of updates into the canvas store. Creates that
// collide with an entry already carrying this thread's evidence are replay
// no-ops; merges handle their own idempotence.
func (r *Reconciler) Apply(ctx context.Context, updates []types.CanvasUpdate) error {
	for _, update := range updates {
		if update.Op == types.CanvasOpCreate {
			if err := r.applyCreate(ctx, update); err != nil {
				return err
			}
			continue
		}
		if _, err := r.canvas.Merge(ctx, update); err != nil {
			return fmt.Errorf("failed to merge canvas entry %s: %w", update.EntryID, err)
		}
	}
	return nil
}

func (r *Reconciler) applyCreate(ctx context.Context, update types.CanvasUpdate) error {
	entry := NewBaselineEntry(update.EntryID, update.Title)
	ApplyCanvasUpdate(entry, update)
	err := r.canvas.Create(ctx, entry)
	if err == nil {
		return nil
	}
	var exists *EntryExistsError
	if errors.As(err, &exists) {
		// Deterministic create IDs mean a collision is this thread's own
		// proposal replayed.
		current, getErr := r.canvas.Get(ctx, update.EntryID)
		if getErr != nil {
			return fmt.Errorf("failed to load existing canvas entry %s: %w", update.EntryID, getErr)
		}
		if current != nil && current.HasEvidence(update.EvidenceThreadID) {
			return nil
		}
		if _, mergeErr := r.canvas.Merge(ctx, update); mergeErr != nil {
			return fmt.Errorf("failed to merge proposed canvas entry %s: %w", update.EntryID, mergeErr)
		}
		return nil
	}
	return fmt.Errorf("failed to create canvas entry %s: %w", update.EntryID, err)
}

// Finalize runs the full learning cycle once the thread's Stage-6 record
// exists: compute updates, apply them to the canvas, record the Stage-7
// learning record, and mark the thread's canvas references.
func (r *Reconciler) Finalize(ctx context.Context, threadID uuid.UUID) (*types.Thread, error) {
	updates, err := r.Reconcile(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := r.Apply(ctx, updates); err != nil {
		return nil, err
	}

	payload := &types.LearningPayload{Updates: updates, ResultsFinalized: true}
	thread, err := r.sm.Advance(ctx, threadID, types.StageLearning, payload)
	if err != nil {
		return nil, err
	}

	thread.CanvasRefs = entryIDs(updates)
	if err := r.store.UpdateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to record canvas refs: %w", err)
	}
	r.logger.Info("thread reconciled",
		zap.String("thread_id", threadID.String()),
		zap.Int("updates", len(updates)))
	return thread, nil
}

func entryIDs(updates []types.CanvasUpdate) []string {
	seen := make(map[string]struct{}, len(updates))
	out := make([]string, 0, len(updates))
	for _, u := range updates {
		if _, ok := seen[u.EntryID]; ok {
			continue
		}
		seen[u.EntryID] = struct{}{}
		out = append(out, u.EntryID)
	}
	return out
}
