package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/queue"
)

const defaultConcurrency = 4

// Runner drives one claimed execution to its next suspension point.
type Runner interface {
	Run(ctx context.Context, executionID string) (*models.Execution, error)
}

// Pool consumes the dispatch queue with a fixed number of goroutines
// and hands each execution to the runner. Executions arrive already
// claimed by the dispatcher.
type Pool struct {
	queue       queue.Queue
	runner      Runner
	concurrency int
	logger      *slog.Logger
}

func NewPool(q queue.Queue, runner Runner, concurrency int, logger *slog.Logger) *Pool {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	return &Pool{
		queue:       q,
		runner:      runner,
		concurrency: concurrency,
		logger:      logger.With("module", "worker_pool"),
	}
}

// Run blocks until the context is cancelled and all workers drained.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "Worker pool started", "concurrency", p.concurrency)

	var wg sync.WaitGroup

	for i := range p.concurrency {
		wg.Add(1)

		go func(slot int) {
			defer wg.Done()

			p.consume(ctx, slot)
		}(i)
	}

	wg.Wait()
	p.logger.Info("Worker pool stopped")

	return ctx.Err()
}

func (p *Pool) consume(ctx context.Context, slot int) {
	logger := p.logger.With("slot", slot)

	for {
		executionID, err := p.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
				return
			}

			logger.ErrorContext(ctx, "Failed to pop from dispatch queue", "error", err)

			continue
		}

		final, err := p.runner.Run(ctx, executionID)
		if err != nil {
			logger.ErrorContext(ctx, "Execution run failed", "execution_id", executionID, "error", err)

			continue
		}

		logger.InfoContext(ctx, "Execution pass finished",
			"execution_id", executionID,
			"status", string(final.Status))
	}
}
