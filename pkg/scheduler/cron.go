package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/persistence"
	"github.com/trmhq/flowline/pkg/services"
)

const defaultCronInterval = 30 * time.Second

// CronFirer fires active schedule-triggered workflows through the
// trigger service when their cron expression comes due. Each tick
// carries a deduplication key derived from the workflow and the
// scheduled instant, so two firer processes racing on the same tick
// create a single execution.
type CronFirer struct {
	persistence persistence.Persistence
	trigger     *services.Trigger
	interval    time.Duration
	nextDue     map[string]time.Time
	logger      *slog.Logger
}

func NewCronFirer(p persistence.Persistence, trigger *services.Trigger, interval time.Duration, logger *slog.Logger) *CronFirer {
	if interval <= 0 {
		interval = defaultCronInterval
	}

	return &CronFirer{
		persistence: p,
		trigger:     trigger,
		interval:    interval,
		nextDue:     make(map[string]time.Time),
		logger:      logger.With("module", "cron_firer"),
	}
}

// Run fires until the context is cancelled.
func (c *CronFirer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Cron firer started", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := c.FireDue(ctx, time.Now().UTC()); err != nil {
			c.logger.ErrorContext(ctx, "Cron pass failed", "error", err)
		}
	}
}

// FireDue performs one pass over active schedule-triggered workflows.
func (c *CronFirer) FireDue(ctx context.Context, now time.Time) error {
	active := models.WorkflowStatusActive
	scheduleTrigger := models.TriggerTypeSchedule

	workflows, err := c.persistence.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{
		Status:      &active,
		TriggerType: &scheduleTrigger,
	})
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(workflows))

	for _, workflow := range workflows {
		seen[workflow.ID] = true

		due, ok := c.nextDue[workflow.ID]
		if !ok {
			next, err := workflow.Trigger.NextRun(now)
			if err != nil {
				c.logger.ErrorContext(ctx, "Invalid cron expression",
					"workflow_id", workflow.ID,
					"cron_expression", workflow.Trigger.CronExpression,
					"error", err)

				continue
			}

			c.nextDue[workflow.ID] = next

			continue
		}

		if due.After(now) {
			continue
		}

		c.fire(ctx, workflow, due)

		next, err := workflow.Trigger.NextRun(due)
		if err != nil {
			delete(c.nextDue, workflow.ID)

			continue
		}

		c.nextDue[workflow.ID] = next
	}

	// Forget workflows that were paused, archived or deleted.
	for id := range c.nextDue {
		if !seen[id] {
			delete(c.nextDue, id)
		}
	}

	return nil
}

func (c *CronFirer) fire(ctx context.Context, workflow *models.Workflow, scheduledFor time.Time) {
	result, err := c.trigger.Fire(ctx, services.TriggerRequest{
		WorkflowID:  workflow.ID,
		EntityType:  workflow.Trigger.EntityType,
		EntityID:    workflow.ID,
		Input:       map[string]any{"scheduled_for": scheduledFor.Format(time.RFC3339)},
		TriggeredBy: "cron",
		DedupKey:    fmt.Sprintf("cron:%s:%d", workflow.ID, scheduledFor.Unix()),
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to fire scheduled workflow", "workflow_id", workflow.ID, "error", err)

		return
	}

	if !result.Accepted {
		c.logger.InfoContext(ctx, "Scheduled trigger declined", "workflow_id", workflow.ID, "reason", result.Reason)

		return
	}

	c.logger.InfoContext(ctx, "Scheduled workflow fired",
		"workflow_id", workflow.ID,
		"execution_id", result.ExecutionID,
		"scheduled_for", scheduledFor.Format(time.RFC3339),
		"deduplicated", result.Deduplicated)
}
