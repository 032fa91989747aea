// Package persistence provides the storage abstraction for workflow
// definitions and executions.
package persistence

import (
	"context"
	"time"

	"github.com/trmhq/flowline/pkg/models"
)

// Persistence is the single source of truth for workflow and execution
// state. All cross-process coordination happens through conditional
// writes against it, never through shared in-memory locks.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters workflow listings.
type ListWorkflowsOptions struct {
	Status      *models.WorkflowStatus
	TriggerType *models.TriggerType
	Limit       int
	Offset      int
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context, opts ListWorkflowsOptions) ([]*models.Workflow, error)

	// UpdateStats overwrites the aggregate counters. Used by the stats
	// aggregator; counters are informational and eventually consistent.
	UpdateStats(ctx context.Context, id string, stats models.WorkflowStats) error

	// IncrementStarted bumps the started counter. Best effort, not
	// atomic with execution creation.
	IncrementStarted(ctx context.Context, id string) error
}

// ListExecutionsOptions filters execution listings.
type ListExecutionsOptions struct {
	WorkflowID string
	EntityType models.EntityType
	EntityID   string
	Status     *models.ExecutionStatus
	Limit      int
	Offset     int
}

// ExecutionRepository stores executions and their mutable progress.
//
// Update and Claim are the concurrency-critical operations: both are
// compare-and-swap writes guarded by the stored status, so two racing
// workers can never both hold the same execution.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	List(ctx context.Context, opts ListExecutionsOptions) ([]*models.Execution, int64, error)

	// Update persists the execution only if its stored status still
	// equals expected; otherwise ErrConcurrencyConflict.
	Update(ctx context.Context, execution *models.Execution, expected models.ExecutionStatus) error

	// Claim atomically transitions id from the given claimable status
	// to RUNNING and stamps the worker. A lost race yields
	// ErrConcurrencyConflict.
	Claim(ctx context.Context, id string, from models.ExecutionStatus, workerID string, now time.Time) (*models.Execution, error)

	// ListDue returns executions in PENDING/DELAYED/RETRYING whose
	// scheduled_at/next_attempt_at is null or has elapsed.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error)

	// ListStaleRunning returns RUNNING executions not touched since
	// olderThan, for the liveness sweep.
	ListStaleRunning(ctx context.Context, olderThan time.Time, limit int) ([]*models.Execution, error)

	// FindByDedupKey returns the non-terminal execution carrying the
	// given deduplication key for the workflow, or ErrExecutionNotFound.
	FindByDedupKey(ctx context.Context, workflowID, key string) (*models.Execution, error)

	// RecordResults persists action results and logs without touching
	// status. Used to record the outcome of an action that was already
	// in flight when the execution was cancelled.
	RecordResults(ctx context.Context, execution *models.Execution) error

	CountByStatus(ctx context.Context, workflowID string) (map[models.ExecutionStatus]int64, error)
}
