// Package main provides the Flowline worker: scheduler, runner pool,
// stale sweep, cron firing and stats aggregation in one process.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/trmhq/flowline/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowline-worker",
		Usage:                 "Run due executions and keep the execution store moving",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, memory)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis address for the shared dispatch queue (empty = in-process queue)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Number of concurrent execution runners",
				Value:   4,
				Sources: cli.EnvVars("WORKER_CONCURRENCY"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often the dispatcher scans for due executions",
				Value:   5 * time.Second,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "entity-api-url",
				Usage:   "Base URL of the platform entity API",
				Sources: cli.EnvVars("ENTITY_API_URL"),
			},
			&cli.StringFlag{
				Name:    "entity-api-key",
				Usage:   "API key for the platform entity API",
				Sources: cli.EnvVars("ENTITY_API_KEY"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Flowline worker")

			worker, err := NewWorker(ctx, workerID, logger, workerConfig{
				DatabaseURL:  command.String("database-url"),
				EventBus:     command.String("event-bus"),
				RedisURL:     command.String("redis-url"),
				Concurrency:  command.Int("concurrency"),
				PollInterval: command.Duration("poll-interval"),
				EntityAPIURL: command.String("entity-api-url"),
				EntityAPIKey: command.String("entity-api-key"),
				Tracing:      command.Bool("tracing"),
			})
			if err != nil {
				return err
			}
			defer worker.Close(ctx)

			err = worker.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
