// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/trmhq/flowline/pkg/models"
)

type EventType string

// Kafka topic for execution lifecycle events.
const Topic = "flowline.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionTriggeredEvent EventType = "execution.triggered"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionDelayedEvent   EventType = "execution.delayed"
	ExecutionRetryingEvent  EventType = "execution.retrying"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	WorkerID    string         `json:"worker_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type ExecutionTriggered struct {
	BaseEvent

	TriggerType models.TriggerType `json:"trigger_type"`
	EntityType  models.EntityType  `json:"entity_type"`
	EntityID    string             `json:"entity_id"`
}

func (e ExecutionTriggered) GetType() EventType {
	return ExecutionTriggeredEvent
}

type ExecutionStarted struct {
	BaseEvent

	Attempt int `json:"attempt"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionDelayed struct {
	BaseEvent

	ActionIndex int       `json:"action_index"`
	ResumeAt    time.Time `json:"resume_at"`
}

func (e ExecutionDelayed) GetType() EventType {
	return ExecutionDelayedEvent
}

type ExecutionRetrying struct {
	BaseEvent

	ActionIndex   int       `json:"action_index"`
	Attempt       int       `json:"attempt"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	Error         string    `json:"error"`
}

func (e ExecutionRetrying) GetType() EventType {
	return ExecutionRetryingEvent
}

type ExecutionCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ActionIndex int           `json:"action_index"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}
