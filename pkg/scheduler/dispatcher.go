// Package scheduler moves due executions from the store onto the
// dispatch queue and drives them through the runner. All pickup is
// guarded by conditional claims, so any number of scheduler processes
// can run against the same store.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/trmhq/flowline/pkg/persistence"
	"github.com/trmhq/flowline/pkg/queue"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 50
)

// Dispatcher periodically scans for due executions, claims each one
// and pushes the claimed IDs onto the dispatch queue. A claim that
// loses the race is skipped, never retried within a pass.
type Dispatcher struct {
	persistence  persistence.Persistence
	queue        queue.Queue
	workerID     string
	pollInterval time.Duration
	batchSize    int
	wake         chan struct{}
	logger       *slog.Logger
}

type DispatcherOption func(*Dispatcher)

func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.pollInterval = interval
	}
}

func WithBatchSize(size int) DispatcherOption {
	return func(d *Dispatcher) {
		d.batchSize = size
	}
}

func NewDispatcher(p persistence.Persistence, q queue.Queue, workerID string, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		persistence:  p,
		queue:        q,
		workerID:     workerID,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		wake:         make(chan struct{}, 1),
		logger:       logger.With("module", "dispatcher", "worker_id", workerID),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Wake requests an immediate scan without waiting for the next tick.
// Safe to call from any goroutine; a pending wake is coalesced.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run scans until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "Dispatcher started", "poll_interval", d.pollInterval.String())

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "Dispatcher stopping")

			return ctx.Err()
		case <-ticker.C:
		case <-d.wake:
		}

		if err := d.DispatchDue(ctx, time.Now().UTC()); err != nil {
			d.logger.ErrorContext(ctx, "Dispatch pass failed", "error", err)
		}
	}
}

// DispatchDue performs one scan pass: list due executions, claim each
// into RUNNING, and push the winners onto the queue. Returns the first
// store-level error; individual claim conflicts are not errors.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) error {
	executions, err := d.persistence.ExecutionRepository().ListDue(ctx, now, d.batchSize)
	if err != nil {
		return err
	}

	for _, execution := range executions {
		if !execution.Due(now) {
			continue
		}

		_, err := d.persistence.ExecutionRepository().Claim(ctx, execution.ID, execution.Status, d.workerID, now)
		if err != nil {
			if persistence.IsConcurrencyConflict(err) {
				d.logger.DebugContext(ctx, "Execution claimed elsewhere, skipping", "execution_id", execution.ID)

				continue
			}

			d.logger.ErrorContext(ctx, "Failed to claim execution", "execution_id", execution.ID, "error", err)

			continue
		}

		if err := d.queue.Push(ctx, execution.ID); err != nil {
			d.logger.ErrorContext(ctx, "Failed to enqueue claimed execution", "execution_id", execution.ID, "error", err)

			continue
		}

		d.logger.InfoContext(ctx, "Execution dispatched",
			"execution_id", execution.ID,
			"workflow_id", execution.WorkflowID,
			"from_status", string(execution.Status))
	}

	return nil
}
