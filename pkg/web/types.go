package web

import (
	"time"

	"github.com/trmhq/flowline/pkg/models"
)

// TriggerWorkflowRequest is the body of POST /workflows/:id/trigger.
type TriggerWorkflowRequest struct {
	EntityType  string         `json:"entity_type" validate:"required"`
	EntityID    string         `json:"entity_id"   validate:"required"`
	Input       map[string]any `json:"input,omitempty"`
	TriggeredBy string         `json:"triggered_by,omitempty"`
	DedupKey    string         `json:"dedup_key,omitempty"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
}

// TriggerWorkflowResponse reports the result of a trigger request.
type TriggerWorkflowResponse struct {
	Accepted     bool   `json:"accepted"`
	ExecutionID  string `json:"execution_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// CancelExecutionRequest is the body of POST /executions/:id/cancel.
type CancelExecutionRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required"`
	Reason      string `json:"reason,omitempty"`
}

// ListExecutionsRequest carries the query parameters of GET /executions.
type ListExecutionsRequest struct {
	WorkflowID string
	EntityType string
	EntityID   string
	Status     *models.ExecutionStatus
	Limit      int
	Offset     int
}
