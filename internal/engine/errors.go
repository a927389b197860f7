// Package engine implements the thread state machine, the action dispatcher
// with its declarative successor table, and the learning reconciler.
package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// FieldError reports a single invalid field in a stage payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// StageOutOfOrderError indicates an advance call that violates the 1..7
// ordering. It is a caller bug and is never retried automatically.
type StageOutOfOrderError struct {
	ThreadID     uuid.UUID
	CurrentStage int
	TargetStage  int
}

func (e *StageOutOfOrderError) Error() string {
	return fmt.Sprintf("thread %s: cannot advance to stage %d from stage %d",
		e.ThreadID, e.TargetStage, e.CurrentStage)
}

// StagePayloadInvalidError indicates a payload that failed schema validation
// for its target stage. The caller must supply a corrected payload.
type StagePayloadInvalidError struct {
	ThreadID uuid.UUID
	Stage    int
	Fields   []FieldError
	Cause    error
}

func (e *StagePayloadInvalidError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "thread %s: invalid payload for stage %d", e.ThreadID, e.Stage)
	for _, f := range e.Fields {
		fmt.Fprintf(&sb, "; %s: %s", f.Field, f.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

func (e *StagePayloadInvalidError) Unwrap() error {
	return e.Cause
}

// UnknownActionTypeError indicates a registry/configuration mismatch. It is
// fatal for the thread: processing should halt and an operator be alerted.
type UnknownActionTypeError struct {
	Type string
}

func (e *UnknownActionTypeError) Error() string {
	return fmt.Sprintf("unknown action type: %s", e.Type)
}

// ResultNotLegalError indicates a submitted result outside the action
// type's legal result set.
type ResultNotLegalError struct {
	ActionID uuid.UUID
	Type     string
	Result   string
	Legal    []string
}

func (e *ResultNotLegalError) Error() string {
	return fmt.Sprintf("action %s: result %q is not legal for type %q (legal: %s)",
		e.ActionID, e.Result, e.Type, strings.Join(e.Legal, ", "))
}

// ConflictingResultError indicates a duplicate submission that disagrees
// with the stored result. Two actors disagreeing on an outcome is a business
// decision; both values are surfaced for a human to adjudicate.
type ConflictingResultError struct {
	ThreadID  uuid.UUID
	ActionID  uuid.UUID
	Stored    string
	Submitted string
}

func (e *ConflictingResultError) Error() string {
	return fmt.Sprintf("action %s on thread %s already resolved as %q, got conflicting result %q",
		e.ActionID, e.ThreadID, e.Stored, e.Submitted)
}

// ThreadNotFoundError indicates an unknown thread ID.
type ThreadNotFoundError struct {
	ThreadID uuid.UUID
}

func (e *ThreadNotFoundError) Error() string {
	return fmt.Sprintf("thread not found: %s", e.ThreadID)
}

// ActionNotFoundError indicates an unknown action ID for a thread.
type ActionNotFoundError struct {
	ThreadID uuid.UUID
	ActionID uuid.UUID
}

func (e *ActionNotFoundError) Error() string {
	return fmt.Sprintf("action %s not found on thread %s", e.ActionID, e.ThreadID)
}

// ActionNotCurrentError indicates a submission against an action that is
// not the thread's unique open action.
type ActionNotCurrentError struct {
	ThreadID uuid.UUID
	ActionID uuid.UUID
}

func (e *ActionNotCurrentError) Error() string {
	return fmt.Sprintf("action %s is not the open action for thread %s", e.ActionID, e.ThreadID)
}

// EntryExistsError indicates a canvas create colliding with an existing
// entry ID.
type EntryExistsError struct {
	EntryID string
}

func (e *EntryExistsError) Error() string {
	return fmt.Sprintf("canvas entry already exists: %s", e.EntryID)
}

// MergeConflictError indicates a canvas compare-and-swap that did not
// settle within the retry budget.
type MergeConflictError struct {
	EntryID string
	Retries int
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("canvas entry %s: merge conflict persisted after %d retries", e.EntryID, e.Retries)
}
