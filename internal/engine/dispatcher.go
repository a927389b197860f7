package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evanhsu/dealthread/internal/types"
)

// NextStep is the dispatcher's answer to a submitted result: either the
// follow-up action created from the successor table, or stage completion.
type NextStep struct {
	NewAction     *types.Action `json:"new_action,omitempty"`
	StageComplete bool          `json:"stage_complete"`
}

// Dispatcher drives Stage 5. It never blocks a thread waiting for a human:
// a human-required action is persisted as pending and control returns to
// the caller. Any process can resume the thread later by submitting the
// action's result; the dispatcher is re-entrant from persisted state alone.
type Dispatcher struct {
	store      ThreadStore
	registry   *Registry
	sm         *StateMachine
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewDispatcher builds a dispatcher. The reconciler may be nil, in which
// case stage completion stops after the Stage-6 record and Finalize must be
// invoked separately.
func NewDispatcher(store ThreadStore, registry *Registry, sm *StateMachine, reconciler *Reconciler, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, registry: registry, sm: sm, reconciler: reconciler, logger: logger}
}

// SubmitResult resolves the thread's open action with a result and consults
// the successor table for what happens next. Replaying a submission with
// the result already stored is idempotent; a different result raises a
// conflict for a human to adjudicate.
func (d *Dispatcher) SubmitResult(ctx context.Context, threadID, actionID uuid.UUID, result string) (*NextStep, error) {
	thread, err := d.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	if thread == nil {
		return nil, &ThreadNotFoundError{ThreadID: threadID}
	}

	action, err := d.store.GetAction(ctx, threadID, actionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load action: %w", err)
	}
	if action == nil {
		return nil, &ActionNotFoundError{ThreadID: threadID, ActionID: actionID}
	}

	if action.Status == types.ActionStatusCompleted {
		return d.replay(ctx, thread, action, result)
	}

	if thread.Stage != types.StageActions {
		return nil, &StageOutOfOrderError{ThreadID: threadID, CurrentStage: thread.Stage, TargetStage: types.StageActions}
	}
	if thread.CurrentActionID == nil || *thread.CurrentActionID != actionID || !action.Open() {
		return nil, &ActionNotCurrentError{ThreadID: threadID, ActionID: actionID}
	}

	descriptor, err := d.registry.Descriptor(action.Type)
	if err != nil {
		return nil, err
	}
	if !descriptor.ResultLegal(result) {
		return nil, &ResultNotLegalError{ActionID: actionID, Type: action.Type, Result: result, Legal: descriptor.LegalResults}
	}

	now := time.Now().UTC()
	action.Status = types.ActionStatusCompleted
	action.Result = result
	action.CompletedAt = &now
	if err := d.store.UpdateAction(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to complete action: %w", err)
	}
	d.logger.Info("action resolved",
		zap.String("thread_id", threadID.String()),
		zap.String("action_id", actionID.String()),
		zap.String("type", action.Type),
		zap.String("result", result))

	successorType := descriptor.Successors[result]
	if successorType == StageComplete {
		return d.completeStage(ctx, thread, action, result)
	}
	return d.createSuccessor(ctx, thread, successorType)
}

// createSuccessor materializes the next action in pending state and hands
// control back. Serial execution within a thread: the new action takes the
// single in-flight slot just vacated.
func (d *Dispatcher) createSuccessor(ctx context.Context, thread *types.Thread, successorType string) (*NextStep, error) {
	descriptor, err := d.registry.Descriptor(successorType)
	if err != nil {
		return nil, err
	}
	action := newAction(thread.ID, descriptor)
	if err := d.store.CreateAction(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to create successor action: %w", err)
	}
	thread.CurrentActionID = &action.ID
	thread.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to update thread with successor: %w", err)
	}
	d.logger.Info("successor action created",
		zap.String("thread_id", thread.ID.String()),
		zap.String("action_id", action.ID.String()),
		zap.String("type", action.Type),
		zap.Bool("human_required", action.HumanRequired))
	return &NextStep{NewAction: action}, nil
}

// completeStage closes Stage 5, records the Stage-6 outcome derived from
// the terminal action, and finalizes learning when a reconciler is wired.
func (d *Dispatcher) completeStage(ctx context.Context, thread *types.Thread, terminal *types.Action, result string) (*NextStep, error) {
	thread.CurrentActionID = nil
	thread.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to close actions stage: %w", err)
	}

	results := &types.ResultsPayload{
		Outcome:     TerminalOutcome(result),
		FinalAction: terminal.Type,
		FinalResult: result,
	}
	if _, err := d.sm.Advance(ctx, thread.ID, types.StageResults, results); err != nil {
		return nil, err
	}
	d.logger.Info("actions stage complete",
		zap.String("thread_id", thread.ID.String()),
		zap.String("outcome", string(results.Outcome)))

	if d.reconciler != nil {
		if _, err := d.reconciler.Finalize(ctx, thread.ID); err != nil {
			return nil, err
		}
	}
	return &NextStep{StageComplete: true}, nil
}

// replay handles a duplicate submission against an already-completed
// action: same result is answered idempotently from the stored state,
// anything else is a conflict.
func (d *Dispatcher) replay(ctx context.Context, thread *types.Thread, action *types.Action, result string) (*NextStep, error) {
	if action.Result != result {
		return nil, &ConflictingResultError{
			ThreadID:  thread.ID,
			ActionID:  action.ID,
			Stored:    action.Result,
			Submitted: result,
		}
	}
	descriptor, err := d.registry.Descriptor(action.Type)
	if err != nil {
		return nil, err
	}
	if descriptor.Successors[result] == StageComplete {
		return &NextStep{StageComplete: true}, nil
	}

	// The successor was already created by the original submission; find it
	// in the ordered action log.
	actions, err := d.store.ListActions(ctx, thread.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	for i, a := range actions {
		if a.ID == action.ID && i+1 < len(actions) {
			successor := actions[i+1]
			return &NextStep{NewAction: &successor}, nil
		}
	}
	return &NextStep{StageComplete: thread.Stage > types.StageActions}, nil
}
