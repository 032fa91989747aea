package models

import (
	"fmt"
	"time"
)

// ActionType is the closed set of action kinds a workflow step may use.
// Adding a type means adding a registry factory, so the set is checked
// at compile time rather than with runtime string dispatch.
type ActionType string

const (
	ActionTypeSendEmail        ActionType = "send_email"
	ActionTypeSendWhatsApp     ActionType = "send_whatsapp"
	ActionTypeSendNotification ActionType = "send_notification"
	ActionTypeUpdateStatus     ActionType = "update_status"
	ActionTypeWebhook          ActionType = "webhook"
	ActionTypeDelay            ActionType = "delay"
	ActionTypeCondition        ActionType = "condition"
)

// Internal reports whether the action is executed by the runner itself
// instead of being dispatched to a registered handler.
func (t ActionType) Internal() bool {
	return t == ActionTypeDelay || t == ActionTypeCondition
}

// KnownActionType reports whether t is one of the supported action types.
func KnownActionType(t ActionType) bool {
	switch t {
	case ActionTypeSendEmail, ActionTypeSendWhatsApp, ActionTypeSendNotification,
		ActionTypeUpdateStatus, ActionTypeWebhook, ActionTypeDelay, ActionTypeCondition:
		return true
	default:
		return false
	}
}

// BackoffStrategy selects how the retry interval grows between attempts.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy governs re-invocation of a failed action.
type RetryPolicy struct {
	MaxAttempts    int             `json:"max_attempts"    validate:"min=1,max=10"`
	BackoffSeconds int             `json:"backoff_seconds" validate:"min=0"`
	Strategy       BackoffStrategy `json:"strategy,omitempty"`
}

// FailureAction decides what happens once an action's retries are exhausted.
type FailureAction string

const (
	FailureAbort    FailureAction = "abort"
	FailureContinue FailureAction = "continue"
	FailureSkipTo   FailureAction = "skip_to"
)

// FailurePolicy is consulted after retries are exhausted, and by
// condition actions whose predicate evaluates to false.
type FailurePolicy struct {
	Action FailureAction `json:"action"`
	// SkipTo is the action index to jump to when Action is skip_to.
	SkipTo int `json:"skip_to,omitempty" validate:"min=0"`
}

const defaultActionTimeout = 30 * time.Second

// ActionSpec is one step in a workflow's ordered action list. The index
// within the list is the execution cursor.
type ActionSpec struct {
	Type           ActionType     `json:"type"   validate:"required"`
	Name           string         `json:"name,omitempty"`
	Config         map[string]any `json:"config"`
	Retry          RetryPolicy    `json:"retry"`
	OnFailure      FailurePolicy  `json:"on_failure"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" validate:"min=0"`
}

// MaxAttempts returns the effective attempt budget, with the single-shot default.
func (a ActionSpec) MaxAttempts() int {
	if a.Retry.MaxAttempts < 1 {
		return 1
	}

	return a.Retry.MaxAttempts
}

// Timeout returns the bounded handler timeout for this action.
func (a ActionSpec) Timeout() time.Duration {
	if a.TimeoutSeconds > 0 {
		return time.Duration(a.TimeoutSeconds) * time.Second
	}

	return defaultActionTimeout
}

// DelaySeconds reads the pause length from a delay action's config.
func (a ActionSpec) DelaySeconds() (int, error) {
	raw, ok := a.Config["seconds"]
	if !ok {
		return 0, fmt.Errorf("delay action missing 'seconds' config")
	}

	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("delay action 'seconds' has unsupported type %T", raw)
	}
}

// ConditionPredicates parses the predicate list from a condition
// action's config.
func (a ActionSpec) ConditionPredicates() ([]Condition, error) {
	raw, ok := a.Config["conditions"]
	if !ok {
		return nil, fmt.Errorf("condition action missing 'conditions' config")
	}

	return ParseConditions(raw)
}
