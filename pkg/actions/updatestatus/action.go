// Package updatestatus provides the update_status action for workflow steps.
package updatestatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/trmhq/flowline/pkg/entity"
	"github.com/trmhq/flowline/pkg/protocol"
	"github.com/trmhq/flowline/pkg/template"
)

// ErrStatusInvalid is returned when the target status is missing or invalid.
var ErrStatusInvalid = errors.New("invalid target status")

// Action moves the execution's entity to a new status on the platform.
type Action struct {
	Status string
	Notes  string
	store  entity.Store
}

func NewAction(config map[string]any, store entity.Store) (*Action, error) {
	status, ok := config["status"].(string)
	if !ok || status == "" {
		return nil, fmt.Errorf("missing or invalid 'status' in configuration: %w", ErrStatusInvalid)
	}

	notes, _ := config["notes"].(string)

	return &Action{
		Status: status,
		Notes:  notes,
		store:  store,
	}, nil
}

func (a *Action) Execute(ctx context.Context, req protocol.HandlerRequest, logger *slog.Logger) (*protocol.HandlerResult, error) {
	logger = logger.With("module", "update_status_action")

	status, err := template.RenderString(a.Status, req.Execution, req.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to render 'status' template: %w", err)
	}

	notes, err := template.RenderString(a.Notes, req.Execution, req.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to render 'notes' template: %w", err)
	}

	execution := req.Execution

	err = a.store.UpdateStatus(ctx, execution.EntityType, execution.EntityID, status, notes)
	if err != nil {
		return nil, fmt.Errorf("status update failed for %s %s: %w", execution.EntityType, execution.EntityID, err)
	}

	logger.InfoContext(ctx, "Entity status updated",
		"entity_type", execution.EntityType,
		"entity_id", execution.EntityID,
		"status", status,
	)

	return &protocol.HandlerResult{
		Output: map[string]any{
			"entity_type": string(execution.EntityType),
			"entity_id":   execution.EntityID,
			"status":      status,
		},
	}, nil
}
