package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/trmhq/flowline/pkg/entity"
	"github.com/trmhq/flowline/pkg/eventbus"
	"github.com/trmhq/flowline/pkg/events"
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/persistence"
)

// TriggerRequest asks for one workflow to fire against one entity.
type TriggerRequest struct {
	WorkflowID  string            `validate:"required"`
	EntityType  models.EntityType `validate:"required"`
	EntityID    string            `validate:"required"`
	Input       map[string]any
	TriggeredBy string
	DedupKey    string
	ScheduledAt *time.Time
}

// TriggerResult reports whether the trigger was accepted.
type TriggerResult struct {
	Accepted    bool   `json:"accepted"`
	ExecutionID string `json:"execution_id,omitempty"`
	Reason      string `json:"reason,omitempty"`

	// Deduplicated is true when an existing non-terminal execution with
	// the same dedup key was returned instead of a new one.
	Deduplicated bool `json:"deduplicated,omitempty"`
}

// Trigger validates trigger requests and creates executions.
type Trigger struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	store       entity.Store
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewTrigger(p persistence.Persistence, bus eventbus.EventBus, logger *slog.Logger) *Trigger {
	return &Trigger{
		persistence: p,
		eventBus:    bus,
		validator:   validator.New(),
		logger:      logger.With("module", "trigger_service"),
	}
}

// SetEntityStore makes the subject entity's fields visible to trigger
// conditions under the "entity" namespace. Without a store only the
// request input is evaluated.
func (t *Trigger) SetEntityStore(store entity.Store) {
	t.store = store
}

// Fire runs the full trigger pipeline: validation, workflow lookup,
// condition evaluation, deduplication, creation. A declined trigger
// (inactive workflow, conditions not met) is a non-error result with
// Accepted=false and the rejection recorded in Reason.
func (t *Trigger) Fire(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	if err := t.validator.Struct(req); err != nil {
		return nil, &ServiceError{Op: "trigger", Message: err.Error(), Err: ErrInvalidRequest}
	}

	if !models.KnownEntityType(req.EntityType) {
		return nil, &ServiceError{
			Op:      "trigger",
			Message: fmt.Sprintf("unknown entity type %q", req.EntityType),
			Err:     ErrUnknownEntityType,
		}
	}

	workflow, err := t.persistence.WorkflowRepository().GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	if workflow.Trigger.EntityType != req.EntityType {
		return nil, &ServiceError{
			Op: "trigger",
			Message: fmt.Sprintf("workflow expects entity type %q, got %q",
				workflow.Trigger.EntityType, req.EntityType),
			Err: ErrTypeMismatch,
		}
	}

	if !workflow.Triggerable() {
		return &TriggerResult{
			Accepted: false,
			Reason:   fmt.Sprintf("workflow is %s", workflow.Status),
		}, nil
	}

	matched := true

	if len(workflow.Trigger.Conditions) > 0 {
		doc, err := t.conditionInput(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to load entity: %w", err)
		}

		matched, err = models.EvaluateAll(workflow.Trigger.Conditions, doc)
		if err != nil {
			return nil, &ServiceError{Op: "trigger", Message: err.Error(), Err: ErrInvalidRequest}
		}
	}

	if !matched {
		t.logger.InfoContext(ctx, "Trigger declined, conditions not met",
			"workflow_id", workflow.ID,
			"entity_id", req.EntityID,
		)

		return &TriggerResult{
			Accepted: false,
			Reason:   "trigger conditions not met",
		}, nil
	}

	if req.DedupKey != "" {
		existing, err := t.persistence.ExecutionRepository().FindByDedupKey(ctx, workflow.ID, req.DedupKey)
		if err == nil {
			return &TriggerResult{
				Accepted:     true,
				ExecutionID:  existing.ID,
				Deduplicated: true,
			}, nil
		}

		if !persistence.IsExecutionNotFound(err) {
			return nil, fmt.Errorf("failed to check dedup key: %w", err)
		}
	}

	execution, err := models.NewExecution(workflow, req.EntityType, req.EntityID, req.Input, req.TriggeredBy)
	if err != nil {
		return nil, err
	}

	execution.DedupKey = req.DedupKey

	// A deferred trigger parks the execution in DELAYED until the
	// requested time, the same representation a delay action uses.
	if req.ScheduledAt != nil && req.ScheduledAt.After(time.Now()) {
		execution.Status = models.ExecutionDelayed
		execution.ScheduledAt = req.ScheduledAt
		execution.NextAttemptAt = req.ScheduledAt
	}

	execution.AppendLog(models.LogInfo, "trigger", fmt.Sprintf("execution created by %s", req.TriggeredBy))

	if err := t.persistence.ExecutionRepository().Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	// Counter is informational; a failed increment must not fail the trigger.
	if err := t.persistence.WorkflowRepository().IncrementStarted(ctx, workflow.ID); err != nil {
		t.logger.WarnContext(ctx, "Failed to increment started counter",
			"workflow_id", workflow.ID, "error", err)
	}

	t.publishTriggered(ctx, workflow, execution)

	t.logger.InfoContext(ctx, "Execution created",
		"workflow_id", workflow.ID,
		"execution_id", execution.ID,
		"entity_type", req.EntityType,
		"entity_id", req.EntityID,
	)

	return &TriggerResult{Accepted: true, ExecutionID: execution.ID}, nil
}

// conditionInput is the document trigger conditions evaluate over: the
// request input at the top level plus the subject entity under
// "entity". A missing entity degrades to its identity fields.
func (t *Trigger) conditionInput(ctx context.Context, req TriggerRequest) (map[string]any, error) {
	doc := make(map[string]any, len(req.Input)+1)
	for k, v := range req.Input {
		doc[k] = v
	}

	entityDoc := map[string]any{
		"type": string(req.EntityType),
		"id":   req.EntityID,
	}

	if t.store != nil {
		snapshot, err := t.store.Get(ctx, req.EntityType, req.EntityID)
		if err != nil && !entity.IsEntityNotFound(err) {
			return nil, err
		}

		for k, v := range snapshot {
			entityDoc[k] = v
		}

		entityDoc["type"] = string(req.EntityType)
		entityDoc["id"] = req.EntityID
	}

	doc["entity"] = entityDoc

	return doc, nil
}

func (t *Trigger) publishTriggered(ctx context.Context, workflow *models.Workflow, execution *models.Execution) {
	if t.eventBus == nil {
		return
	}

	event := events.ExecutionTriggered{
		BaseEvent: events.BaseEvent{
			ID:          t.eventBus.GenerateID(),
			Type:        events.ExecutionTriggeredEvent,
			Timestamp:   time.Now().UTC(),
			WorkflowID:  workflow.ID,
			ExecutionID: execution.ID,
		},
		TriggerType: workflow.Trigger.Type,
		EntityType:  execution.EntityType,
		EntityID:    execution.EntityID,
	}

	if err := t.eventBus.Publish(ctx, execution.ID, event); err != nil {
		t.logger.WarnContext(ctx, "Failed to publish triggered event",
			"execution_id", execution.ID, "error", err)
	}
}
