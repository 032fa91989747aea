// Package stats recomputes per-workflow execution counters from the
// execution store. Counters are informational and eventually
// consistent; they are never updated inline with state transitions.
package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/persistence"
)

const defaultAggregateInterval = time.Minute

// Aggregator periodically tallies execution counts per workflow and
// overwrites the workflow's stored counters.
type Aggregator struct {
	persistence persistence.Persistence
	interval    time.Duration
	logger      *slog.Logger
}

func NewAggregator(p persistence.Persistence, interval time.Duration, logger *slog.Logger) *Aggregator {
	if interval <= 0 {
		interval = defaultAggregateInterval
	}

	return &Aggregator{
		persistence: p,
		interval:    interval,
		logger:      logger.With("module", "stats_aggregator"),
	}
}

// Run recomputes until the context is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "Stats aggregator started", "interval", a.interval.String())

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := a.Recompute(ctx, time.Now().UTC()); err != nil {
			a.logger.ErrorContext(ctx, "Stats pass failed", "error", err)
		}
	}
}

// Recompute performs one pass over all workflows.
func (a *Aggregator) Recompute(ctx context.Context, now time.Time) error {
	workflows, err := a.persistence.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{})
	if err != nil {
		return err
	}

	for _, workflow := range workflows {
		counts, err := a.persistence.ExecutionRepository().CountByStatus(ctx, workflow.ID)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to count executions", "workflow_id", workflow.ID, "error", err)

			continue
		}

		var started int64
		for _, count := range counts {
			started += count
		}

		stats := models.WorkflowStats{
			ExecutionsStarted:   started,
			ExecutionsCompleted: counts[models.ExecutionCompleted],
			ExecutionsFailed:    counts[models.ExecutionFailed],
			RecomputedAt:        &now,
		}

		if err := a.persistence.WorkflowRepository().UpdateStats(ctx, workflow.ID, stats); err != nil {
			a.logger.ErrorContext(ctx, "Failed to store stats", "workflow_id", workflow.ID, "error", err)
		}
	}

	return nil
}
