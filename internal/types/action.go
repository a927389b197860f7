package types

import (
	"time"

	"github.com/google/uuid"
)

// ActionStatus constants. An action is never deleted; it is retained as the
// thread's audit trail.
const (
	ActionStatusPending    = "pending"
	ActionStatusInProgress = "in_progress"
	ActionStatusCompleted  = "completed"
	ActionStatusSkipped    = "skipped"
)

// Action is one unit of work inside Stage 5. At most one action per thread
// is pending or in progress at a time.
type Action struct {
	ID            uuid.UUID  `json:"action_id"`
	ThreadID      uuid.UUID  `json:"thread_id"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	HumanRequired bool       `json:"human_required"`
	Result        string     `json:"result,omitempty"`
	Skill         string     `json:"skill,omitempty"`
	AssignedTo    string     `json:"assigned_to,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Due           *time.Time `json:"due,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Open reports whether the action still holds the thread's single
// in-flight slot.
func (a *Action) Open() bool {
	return a.Status == ActionStatusPending || a.Status == ActionStatusInProgress
}

// ActionMetadata is the flat JSON document persisted alongside each action.
// Field names and types are a compatibility contract; new optional fields
// may be added but existing ones must not change.
type ActionMetadata struct {
	ActionID      string `json:"action_id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	HumanRequired bool   `json:"human_required"`
	Skill         string `json:"skill,omitempty"`
	AssignedTo    string `json:"assigned_to,omitempty"`
	Created       string `json:"created"`
	Due           string `json:"due,omitempty"`
	Completed     string `json:"completed,omitempty"`
	Result        string `json:"result,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// Metadata projects the action into its persisted metadata document.
func (a *Action) Metadata() ActionMetadata {
	m := ActionMetadata{
		ActionID:      a.ID.String(),
		Type:          a.Type,
		Status:        a.Status,
		HumanRequired: a.HumanRequired,
		Skill:         a.Skill,
		AssignedTo:    a.AssignedTo,
		Created:       a.CreatedAt.UTC().Format(time.RFC3339),
		Result:        a.Result,
		Notes:         a.Notes,
	}
	if a.Due != nil {
		m.Due = a.Due.UTC().Format(time.RFC3339)
	}
	if a.CompletedAt != nil {
		m.Completed = a.CompletedAt.UTC().Format(time.RFC3339)
	}
	return m
}
