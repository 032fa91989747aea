package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/persistence"
)

const (
	defaultSweepInterval = time.Minute
	defaultStaleAfter    = 5 * time.Minute
	sweepBatchSize       = 50
)

// StaleSweep demotes RUNNING executions whose worker has gone silent
// back to RETRYING at the same action cursor, so another scheduler
// pass picks them up. The demotion is a conditional write: a worker
// that is merely slow keeps its claim by losing the race.
type StaleSweep struct {
	persistence persistence.Persistence
	interval    time.Duration
	staleAfter  time.Duration
	logger      *slog.Logger
}

func NewStaleSweep(p persistence.Persistence, interval, staleAfter time.Duration, logger *slog.Logger) *StaleSweep {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	return &StaleSweep{
		persistence: p,
		interval:    interval,
		staleAfter:  staleAfter,
		logger:      logger.With("module", "stale_sweep"),
	}
}

// Run sweeps until the context is cancelled.
func (s *StaleSweep) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stale sweep started", "interval", s.interval.String(), "stale_after", s.staleAfter.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := s.Sweep(ctx, time.Now().UTC()); err != nil {
			s.logger.ErrorContext(ctx, "Sweep pass failed", "error", err)
		}
	}
}

// Sweep performs one pass. Returns the first listing error; individual
// demotion conflicts are skipped.
func (s *StaleSweep) Sweep(ctx context.Context, now time.Time) error {
	stale, err := s.persistence.ExecutionRepository().ListStaleRunning(ctx, now.Add(-s.staleAfter), sweepBatchSize)
	if err != nil {
		return err
	}

	for _, execution := range stale {
		age := now.Sub(execution.UpdatedAt)

		execution.Status = models.ExecutionRetrying
		nextAttempt := now
		execution.NextAttemptAt = &nextAttempt
		execution.AppendLog(models.LogWarn, "scheduler",
			fmt.Sprintf("worker %s went silent for %s, requeued at action %d",
				execution.ClaimedBy, age.Truncate(time.Second), execution.CurrentAction))

		if err := s.persistence.ExecutionRepository().Update(ctx, execution, models.ExecutionRunning); err != nil {
			if persistence.IsConcurrencyConflict(err) {
				continue
			}

			s.logger.ErrorContext(ctx, "Failed to requeue stale execution", "execution_id", execution.ID, "error", err)

			continue
		}

		s.logger.WarnContext(ctx, "Requeued stale execution",
			"execution_id", execution.ID,
			"workflow_id", execution.WorkflowID,
			"claimed_by", execution.ClaimedBy,
			"stale_for", age.String())
	}

	return nil
}
