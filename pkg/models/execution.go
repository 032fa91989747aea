package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the single state an execution is in at any
// observed instant.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionRetrying  ExecutionStatus = "RETRYING"
	ExecutionDelayed   ExecutionStatus = "DELAYED"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// Terminal reports whether no further progress happens from this status.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// Valid reports whether s is one of the seven defined statuses.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionPending, ExecutionRunning, ExecutionRetrying, ExecutionDelayed,
		ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// Claimable reports whether the scheduler may pick this execution up.
func (s ExecutionStatus) Claimable() bool {
	return s == ExecutionPending || s == ExecutionDelayed || s == ExecutionRetrying
}

// executionTransitions is the only legal mutation graph for execution
// status. FAILED→PENDING is the operator retry-from-start edge.
var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionPending:  {ExecutionRunning, ExecutionCancelled},
	ExecutionRunning:  {ExecutionDelayed, ExecutionRetrying, ExecutionCompleted, ExecutionFailed, ExecutionCancelled},
	ExecutionDelayed:  {ExecutionRunning, ExecutionCancelled},
	ExecutionRetrying: {ExecutionRunning, ExecutionCancelled},
	ExecutionFailed:   {ExecutionPending},
}

// CanTransition reports whether from→to is a legal status edge.
func CanTransition(from, to ExecutionStatus) bool {
	for _, next := range executionTransitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// ActionStatus is the state of one action result entry.
type ActionStatus string

const (
	ActionPending ActionStatus = "PENDING"
	ActionRunning ActionStatus = "RUNNING"
	ActionSuccess ActionStatus = "SUCCESS"
	ActionFailed  ActionStatus = "FAILED"
	ActionSkipped ActionStatus = "SKIPPED"
)

// AttemptRecord preserves the outcome of one attempt of one action.
// Records are appended, never overwritten, so retried actions keep
// their full history.
type AttemptRecord struct {
	Attempt    int       `json:"attempt"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ActionResult is the per-action slot of an execution, one entry per
// action in the owning workflow. Entries beyond the cursor stay PENDING.
type ActionResult struct {
	Status     ActionStatus    `json:"status"`
	Attempt    int             `json:"attempt"`
	Attempts   []AttemptRecord `json:"attempts,omitempty"`
	Error      string          `json:"error,omitempty"`
	Output     any             `json:"output,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// LogLevel classifies execution log entries.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one line of an execution's append-only audit trail.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// Execution is one concrete, stateful run of a workflow against one
// entity. It is created by the trigger service and mutated exclusively
// by the runner and the explicit cancel/retry operations.
type Execution struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Input      map[string]any `json:"input,omitempty"` // Immutable after creation
	DedupKey   string         `json:"dedup_key,omitempty"`

	Status        ExecutionStatus `json:"status"`
	CurrentAction int             `json:"current_action"`
	ActionResults []ActionResult  `json:"action_results"`
	Error         string          `json:"error,omitempty"`

	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`

	Logs []LogEntry `json:"logs,omitempty"`

	TriggeredBy  string `json:"triggered_by,omitempty"`
	ClaimedBy    string `json:"claimed_by,omitempty"`
	CancelledBy  string `json:"cancelled_by,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewExecution builds a PENDING execution for the given workflow with
// one PENDING result slot per action.
func NewExecution(workflow *Workflow, entityType EntityType, entityID string, input map[string]any, triggeredBy string) (*Execution, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution ID: %w", err)
	}

	now := time.Now().UTC()

	results := make([]ActionResult, len(workflow.Actions))
	for i := range results {
		results[i] = ActionResult{Status: ActionPending}
	}

	return &Execution{
		ID:            id.String(),
		WorkflowID:    workflow.ID,
		EntityType:    entityType,
		EntityID:      entityID,
		Input:         input,
		Status:        ExecutionPending,
		ActionResults: results,
		TriggeredBy:   triggeredBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// AppendLog adds one entry to the audit trail.
func (e *Execution) AppendLog(level LogLevel, source, message string) {
	e.Logs = append(e.Logs, LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Source:    source,
		Message:   message,
	})
}

// Result returns the result slot for the given action index.
func (e *Execution) Result(index int) (*ActionResult, error) {
	if index < 0 || index >= len(e.ActionResults) {
		return nil, fmt.Errorf("action index %d out of range (%d actions)", index, len(e.ActionResults))
	}

	return &e.ActionResults[index], nil
}

// Due reports whether the execution is ready for pickup at the given time.
func (e *Execution) Due(now time.Time) bool {
	if !e.Status.Claimable() {
		return false
	}

	switch e.Status {
	case ExecutionPending:
		return e.ScheduledAt == nil || !e.ScheduledAt.After(now)
	default:
		return e.NextAttemptAt == nil || !e.NextAttemptAt.After(now)
	}
}

// ResetForRetry rewinds a FAILED execution to a full restart: cursor to
// zero, every result slot back to PENDING with a zero attempt counter.
// The log history is preserved. A deliberate full restart, not a
// resume: action side effects are not assumed idempotent enough to
// resume mid-sequence.
func (e *Execution) ResetForRetry() {
	e.CurrentAction = 0
	e.Error = ""
	e.NextAttemptAt = nil
	e.FinishedAt = nil
	e.Status = ExecutionPending

	for i := range e.ActionResults {
		e.ActionResults[i] = ActionResult{Status: ActionPending}
	}
}
