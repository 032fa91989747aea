// Package protocol defines the interfaces and contracts for pluggable action handlers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/trmhq/flowline/pkg/models"
)

// HandlerRequest carries everything a handler needs to perform one action
// of one execution.
type HandlerRequest struct {
	Execution  *models.Execution
	Workflow   *models.Workflow
	ActionSpec models.ActionSpec
	Attempt    int

	// Entity is the subject entity's document at dispatch time, with
	// "type" and "id" always present. Templates and conditions see it
	// under the "entity" namespace.
	Entity map[string]any
}

// HandlerResult is the outcome of a successful handler invocation. Output is
// stored on the execution's action result and becomes visible to later
// conditions through the "results" namespace.
type HandlerResult struct {
	Output map[string]any
}

// Handler performs a single action type against the outside world.
type Handler interface {
	Execute(ctx context.Context, req HandlerRequest, logger *slog.Logger) (*HandlerResult, error)
}

// HandlerFactory creates handler instances and provides metadata about
// the action type.
type HandlerFactory interface {
	// Create creates a new handler instance with the given configuration
	Create(config map[string]any) (Handler, error)

	// ID returns the unique identifier for this action type
	ID() string

	// Schema returns the JSON schema for configuring this action type
	Schema() map[string]any
}
