package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trmhq/flowline/pkg/eventbus"
	"github.com/trmhq/flowline/pkg/events"
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/persistence"
)

const cancelRetryAttempts = 3

// Runner drives one claimed execution to its next suspension point or
// terminal state. Implemented by pkg/workflow.
type Runner interface {
	Run(ctx context.Context, executionID string) (*models.Execution, error)
}

// Waker is poked when an execution re-enters the pickup set so the
// scheduler does not wait for its next tick.
type Waker interface {
	Wake()
}

// Execution exposes query, cancel, retry and run-now operations over executions.
type Execution struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	runner      Runner
	waker       Waker
	workerID    string
	logger      *slog.Logger
}

func NewExecution(p persistence.Persistence, bus eventbus.EventBus, runner Runner, workerID string, logger *slog.Logger) *Execution {
	return &Execution{
		persistence: p,
		eventBus:    bus,
		runner:      runner,
		workerID:    workerID,
		logger:      logger.With("module", "execution_service"),
	}
}

// SetWaker wires the scheduler wake hook. Optional; nil means retried
// executions wait for the next poll tick.
func (s *Execution) SetWaker(waker Waker) {
	s.waker = waker
}

// HealthCheck checks the health of the persistence layer.
func (s *Execution) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (s *Execution) Get(ctx context.Context, id string) (*models.Execution, error) {
	return s.persistence.ExecutionRepository().GetByID(ctx, id)
}

// ListExecutionsResponse contains the result of listing executions.
type ListExecutionsResponse struct {
	Executions  []*models.Execution `json:"executions"`
	TotalCount  int64               `json:"total_count"`
	HasNextPage bool                `json:"has_next_page"`
}

func (s *Execution) List(ctx context.Context, opts persistence.ListExecutionsOptions) (*ListExecutionsResponse, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	if opts.Limit > 100 {
		opts.Limit = 100
	}

	executions, total, err := s.persistence.ExecutionRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return &ListExecutionsResponse{
		Executions:  executions,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(executions)) < total,
	}, nil
}

// CancelResult reports whether the cancel took effect.
type CancelResult struct {
	Cancelled bool                   `json:"cancelled"`
	Status    models.ExecutionStatus `json:"status"`
}

// Cancel moves a non-terminal execution to CANCELLED. Cancelling a
// terminal execution is a no-op with Cancelled=false, so racing cancels
// and finishes stay safe. If a runner holds the execution the guarded
// write may conflict; the loop re-reads and re-decides.
func (s *Execution) Cancel(ctx context.Context, id, actorID, reason string) (*CancelResult, error) {
	repo := s.persistence.ExecutionRepository()

	for attempt := 0; attempt < cancelRetryAttempts; attempt++ {
		execution, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if execution.Status.Terminal() {
			return &CancelResult{Cancelled: false, Status: execution.Status}, nil
		}

		previous := execution.Status
		now := time.Now().UTC()

		execution.Status = models.ExecutionCancelled
		execution.CancelledBy = actorID
		execution.CancelReason = reason
		execution.FinishedAt = &now
		execution.AppendLog(models.LogInfo, "cancel",
			fmt.Sprintf("execution cancelled by %s: %s", actorID, reason))

		err = repo.Update(ctx, execution, previous)
		if err == nil {
			s.publishCancelled(ctx, execution, actorID, reason)

			s.logger.InfoContext(ctx, "Execution cancelled",
				"execution_id", id, "cancelled_by", actorID)

			return &CancelResult{Cancelled: true, Status: models.ExecutionCancelled}, nil
		}

		if !persistence.IsConcurrencyConflict(err) {
			return nil, fmt.Errorf("failed to cancel execution: %w", err)
		}
	}

	return nil, &ServiceError{
		Op:      "cancel",
		Message: "execution state kept changing, try again",
		Err:     persistence.ErrConcurrencyConflict,
	}
}

// RetryResult reports whether the retry took effect.
type RetryResult struct {
	Retried bool                   `json:"retried"`
	Status  models.ExecutionStatus `json:"status"`
}

// Retry restarts a FAILED execution from the first action. The reset is
// a full restart, not a resume.
func (s *Execution) Retry(ctx context.Context, id string) (*RetryResult, error) {
	repo := s.persistence.ExecutionRepository()

	execution, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionFailed {
		return nil, &ServiceError{
			Op:      "retry",
			Message: fmt.Sprintf("execution is %s, only FAILED executions can be retried", execution.Status),
			Err:     ErrNotFailed,
		}
	}

	execution.ResetForRetry()
	execution.AppendLog(models.LogInfo, "retry", "execution reset for retry from first action")

	err = repo.Update(ctx, execution, models.ExecutionFailed)
	if err != nil {
		if persistence.IsConcurrencyConflict(err) {
			return nil, &ServiceError{
				Op:      "retry",
				Message: "execution state changed, try again",
				Err:     ErrNotFailed,
			}
		}

		return nil, fmt.Errorf("failed to retry execution: %w", err)
	}

	if s.waker != nil {
		s.waker.Wake()
	}

	s.logger.InfoContext(ctx, "Execution reset for retry", "execution_id", id)

	return &RetryResult{Retried: true, Status: models.ExecutionPending}, nil
}

// ExecuteNow claims a due execution and drives it synchronously through
// one runner pass. Used by the admin "run now" endpoint.
func (s *Execution) ExecuteNow(ctx context.Context, id string) (*models.Execution, error) {
	repo := s.persistence.ExecutionRepository()

	execution, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !execution.Status.Claimable() {
		return nil, &ServiceError{
			Op:      "execute",
			Message: fmt.Sprintf("execution is %s and cannot be started", execution.Status),
			Err:     ErrInvalidRequest,
		}
	}

	_, err = repo.Claim(ctx, id, execution.Status, s.workerID, time.Now().UTC())
	if err != nil {
		if persistence.IsConcurrencyConflict(err) {
			return nil, &ServiceError{
				Op:      "execute",
				Message: "execution was picked up by another worker",
				Err:     persistence.ErrConcurrencyConflict,
			}
		}

		return nil, fmt.Errorf("failed to claim execution: %w", err)
	}

	return s.runner.Run(ctx, id)
}

func (s *Execution) publishCancelled(ctx context.Context, execution *models.Execution, actorID, reason string) {
	if s.eventBus == nil {
		return
	}

	event := events.ExecutionCancelled{
		BaseEvent: events.BaseEvent{
			ID:          s.eventBus.GenerateID(),
			Type:        events.ExecutionCancelledEvent,
			Timestamp:   time.Now().UTC(),
			WorkflowID:  execution.WorkflowID,
			ExecutionID: execution.ID,
		},
		CancelledBy: actorID,
		Reason:      reason,
	}

	if err := s.eventBus.Publish(ctx, execution.ID, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish cancelled event",
			"execution_id", execution.ID, "error", err)
	}
}
