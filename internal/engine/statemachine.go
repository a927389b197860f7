package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evanhsu/dealthread/internal/types"
)

// StateMachine enforces the fixed 1..7 stage sequence for a thread and
// validates stage payload completeness before persisting anything. It has
// no side effects beyond the persistence writes.
type StateMachine struct {
	store    ThreadStore
	registry *Registry
	logger   *zap.Logger
}

// NewStateMachine builds a state machine over a thread store and action
// catalog.
func NewStateMachine(store ThreadStore, registry *Registry, logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateMachine{store: store, registry: registry, logger: logger}
}

// CreateThread opens a new thread at stage 0. The segment binding, when
// present, is frozen here and never re-scored.
func (sm *StateMachine) CreateThread(ctx context.Context, kind types.ThreadKind, segment *types.SegmentBinding, leadSource string) (*types.Thread, error) {
	now := time.Now().UTC()
	thread := &types.Thread{
		ID:         uuid.New(),
		Kind:       kind,
		Stage:      0,
		Segment:    segment,
		LeadSource: leadSource,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := sm.store.CreateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	sm.logger.Info("thread created",
		zap.String("thread_id", thread.ID.String()),
		zap.String("kind", string(kind)),
		zap.Bool("segment_bound", segment != nil))
	return thread, nil
}

// Advance moves a thread to the target stage after validating ordering and
// the stage's payload schema. The payload may be a typed stage struct or
// raw JSON; raw JSON is decoded against the target stage's schema.
//
// Advancing to Stage 5 creates the initial action named by the kickoff
// payload; the action log is the stage's state from then on. A Stage-4
// PASS verdict short-circuits stages 5 and 6 with a minimal no-learning
// Stage-7 record.
func (sm *StateMachine) Advance(ctx context.Context, threadID uuid.UUID, stage int, payload any) (*types.Thread, error) {
	thread, err := sm.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	if stage < types.StageInput || stage > types.StageLearning || thread.Terminal {
		return nil, &StageOutOfOrderError{ThreadID: threadID, CurrentStage: thread.Stage, TargetStage: stage}
	}
	// Stage-5 re-entry is accepted as a no-op on the thread record: the
	// action log carries the stage's state.
	if stage == types.StageActions && thread.Stage == types.StageActions {
		return thread, nil
	}
	if thread.Stage != stage-1 {
		return nil, &StageOutOfOrderError{ThreadID: threadID, CurrentStage: thread.Stage, TargetStage: stage}
	}

	decoded, err := sm.decodePayload(threadID, stage, payload)
	if err != nil {
		return nil, err
	}

	switch stage {
	case types.StageActions:
		kickoff := decoded.(*types.ActionsKickoffPayload)
		return sm.enterActions(ctx, thread, kickoff)
	case types.StageDecision:
		decision := decoded.(*types.DecisionPayload)
		if err := sm.writeStage(ctx, thread, stage, decision); err != nil {
			return nil, err
		}
		if decision.Verdict == types.VerdictPass {
			return sm.shortCircuitPass(ctx, thread)
		}
		return thread, nil
	case types.StageResults:
		if thread.CurrentActionID != nil {
			return nil, &StageOutOfOrderError{ThreadID: threadID, CurrentStage: thread.Stage, TargetStage: stage}
		}
		if err := sm.writeStage(ctx, thread, stage, decoded); err != nil {
			return nil, err
		}
		return thread, nil
	case types.StageLearning:
		learning := decoded.(*types.LearningPayload)
		if err := sm.writeStage(ctx, thread, stage, learning); err != nil {
			return nil, err
		}
		if learning.ResultsFinalized {
			thread.Terminal = true
			if err := sm.store.UpdateThread(ctx, thread); err != nil {
				return nil, fmt.Errorf("failed to finalize thread: %w", err)
			}
		}
		return thread, nil
	default:
		if err := sm.writeStage(ctx, thread, stage, decoded); err != nil {
			return nil, err
		}
		return thread, nil
	}
}

// Abandon terminates a thread at any stage with an explicit abandoned
// Stage-7 record. Stage data already written is never rolled back.
func (sm *StateMachine) Abandon(ctx context.Context, threadID uuid.UUID, reason string) (*types.Thread, error) {
	thread, err := sm.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread.Terminal {
		return nil, &StageOutOfOrderError{ThreadID: threadID, CurrentStage: thread.Stage, TargetStage: types.StageLearning}
	}
	payload := &types.LearningPayload{
		Abandoned:        true,
		AbandonReason:    reason,
		ResultsFinalized: true,
	}
	if err := sm.persistStageRecord(ctx, thread, types.StageLearning, payload); err != nil {
		return nil, err
	}
	thread.Stage = types.StageLearning
	thread.Terminal = true
	thread.CurrentActionID = nil
	thread.UpdatedAt = time.Now().UTC()
	if err := sm.store.UpdateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to abandon thread: %w", err)
	}
	sm.logger.Info("thread abandoned",
		zap.String("thread_id", threadID.String()),
		zap.String("reason", reason))
	return thread, nil
}

// loadThread fetches a thread and maps its absence to a typed error.
func (sm *StateMachine) loadThread(ctx context.Context, threadID uuid.UUID) (*types.Thread, error) {
	thread, err := sm.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	if thread == nil {
		return nil, &ThreadNotFoundError{ThreadID: threadID}
	}
	return thread, nil
}

// enterActions moves the thread into Stage 5 and creates the initial
// pending action. Progression from here is owned by the dispatcher and the
// registry's successor table.
func (sm *StateMachine) enterActions(ctx context.Context, thread *types.Thread, kickoff *types.ActionsKickoffPayload) (*types.Thread, error) {
	descriptor, err := sm.registry.Descriptor(kickoff.InitialAction)
	if err != nil {
		return nil, err
	}
	if !descriptor.LegalFor(thread.Kind) {
		return nil, &StagePayloadInvalidError{
			ThreadID: thread.ID,
			Stage:    types.StageActions,
			Fields: []FieldError{{
				Field:   "initial_action",
				Message: fmt.Sprintf("action type %q is not legal for %s threads", kickoff.InitialAction, thread.Kind),
			}},
		}
	}

	action := newAction(thread.ID, descriptor)
	if err := sm.store.CreateAction(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to create initial action: %w", err)
	}

	thread.Stage = types.StageActions
	thread.CurrentActionID = &action.ID
	thread.UpdatedAt = time.Now().UTC()
	if err := sm.store.UpdateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to enter actions stage: %w", err)
	}
	sm.logger.Info("actions stage entered",
		zap.String("thread_id", thread.ID.String()),
		zap.String("initial_action", action.Type),
		zap.String("action_id", action.ID.String()))
	return thread, nil
}

// shortCircuitPass terminates a PASS thread at stage 4 with a minimal
// no-learning record: there is nothing to validate from a deal that never
// started.
func (sm *StateMachine) shortCircuitPass(ctx context.Context, thread *types.Thread) (*types.Thread, error) {
	payload := &types.LearningPayload{NoLearning: true, ResultsFinalized: true}
	if err := sm.persistStageRecord(ctx, thread, types.StageLearning, payload); err != nil {
		return nil, err
	}
	thread.Stage = types.StageLearning
	thread.Terminal = true
	thread.UpdatedAt = time.Now().UTC()
	if err := sm.store.UpdateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to terminate passed thread: %w", err)
	}
	sm.logger.Info("thread passed at decision stage",
		zap.String("thread_id", thread.ID.String()))
	return thread, nil
}

// writeStage persists a stage record and bumps the thread's stage pointer.
func (sm *StateMachine) writeStage(ctx context.Context, thread *types.Thread, stage int, payload any) error {
	if err := sm.persistStageRecord(ctx, thread, stage, payload); err != nil {
		return err
	}
	thread.Stage = stage
	thread.UpdatedAt = time.Now().UTC()
	if err := sm.store.UpdateThread(ctx, thread); err != nil {
		return fmt.Errorf("failed to update thread stage: %w", err)
	}
	sm.logger.Info("stage advanced",
		zap.String("thread_id", thread.ID.String()),
		zap.Int("stage", stage),
		zap.String("stage_name", types.StageName(stage)))
	return nil
}

func (sm *StateMachine) persistStageRecord(ctx context.Context, thread *types.Thread, stage int, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal stage %d payload: %w", stage, err)
	}
	rec := &types.StageRecord{
		ThreadID:  thread.ID,
		Stage:     stage,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := sm.store.SaveStageRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to save stage %d record: %w", stage, err)
	}
	return nil
}

// decodePayload normalizes the payload argument into the typed struct for
// the target stage and runs schema validation on it.
func (sm *StateMachine) decodePayload(threadID uuid.UUID, stage int, payload any) (any, error) {
	target := stagePayloadPrototype(stage)
	switch v := payload.(type) {
	case json.RawMessage:
		if err := json.Unmarshal(v, target); err != nil {
			return nil, &StagePayloadInvalidError{ThreadID: threadID, Stage: stage, Cause: err}
		}
	case []byte:
		if err := json.Unmarshal(v, target); err != nil {
			return nil, &StagePayloadInvalidError{ThreadID: threadID, Stage: stage, Cause: err}
		}
	default:
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &StagePayloadInvalidError{ThreadID: threadID, Stage: stage, Cause: err}
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, &StagePayloadInvalidError{ThreadID: threadID, Stage: stage, Cause: err}
		}
	}
	if err := validateStagePayload(target); err != nil {
		return nil, payloadInvalid(threadID, stage, err)
	}
	return target, nil
}

func stagePayloadPrototype(stage int) any {
	switch stage {
	case types.StageInput:
		return &types.InputPayload{}
	case types.StageHypothesis:
		return &types.HypothesisPayload{}
	case types.StageImplication:
		return &types.ImplicationPayload{}
	case types.StageDecision:
		return &types.DecisionPayload{}
	case types.StageActions:
		return &types.ActionsKickoffPayload{}
	case types.StageResults:
		return &types.ResultsPayload{}
	default:
		return &types.LearningPayload{}
	}
}

func validateStagePayload(payload any) error {
	type validatable interface{ Validate() error }
	if v, ok := payload.(validatable); ok {
		return v.Validate()
	}
	return nil
}

// payloadInvalid converts validator field errors into the structured error
// object surfaced to callers, keeping the offending field names.
func payloadInvalid(threadID uuid.UUID, stage int, err error) error {
	out := &StagePayloadInvalidError{ThreadID: threadID, Stage: stage, Cause: err}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out.Cause = nil
		for _, fe := range verrs {
			out.Fields = append(out.Fields, FieldError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
			})
		}
	}
	return out
}

// newAction materializes a pending action from its descriptor.
func newAction(threadID uuid.UUID, descriptor ActionDescriptor) *types.Action {
	now := time.Now().UTC()
	due := now.Add(descriptor.DurationEstimate)
	return &types.Action{
		ID:            uuid.New(),
		ThreadID:      threadID,
		Type:          descriptor.Type,
		Status:        types.ActionStatusPending,
		HumanRequired: descriptor.HumanRequired,
		Skill:         descriptor.Skill,
		CreatedAt:     now,
		Due:           &due,
	}
}
