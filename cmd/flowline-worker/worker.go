package main

import (
	"context"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/trmhq/flowline/pkg/cmd"
	"github.com/trmhq/flowline/pkg/eventbus"
	"github.com/trmhq/flowline/pkg/otelhelper"
	"github.com/trmhq/flowline/pkg/persistence"
	"github.com/trmhq/flowline/pkg/queue"
	"github.com/trmhq/flowline/pkg/scheduler"
	"github.com/trmhq/flowline/pkg/services"
	"github.com/trmhq/flowline/pkg/stats"
	"github.com/trmhq/flowline/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

type workerConfig struct {
	DatabaseURL  string
	EventBus     string
	RedisURL     string
	Concurrency  int
	PollInterval time.Duration
	EntityAPIURL string
	EntityAPIKey string
	Tracing      bool
}

// Worker hosts the long-running loops: the dispatcher feeding the
// queue, the runner pool draining it, the stale sweep, the cron firer
// and the stats aggregator.
type Worker struct {
	workerID    string
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	queue       queue.Queue
	dispatcher  *scheduler.Dispatcher
	pool        *scheduler.Pool
	sweep       *scheduler.StaleSweep
	cron        *scheduler.CronFirer
	stats       *stats.Aggregator
}

func NewWorker(ctx context.Context, workerID string, logger *slog.Logger, cfg workerConfig) (*Worker, error) {
	p := cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
	bus := cmd.NewEventBus(cfg.EventBus, "flowline-worker", logger)
	q := cmd.NewQueue(ctx, cfg.RedisURL)

	store := cmd.NewEntityStore(cfg.EntityAPIURL, cfg.EntityAPIKey)
	registry := cmd.NewRegistry(logger, store)

	var tracer trace.Tracer

	if cfg.Tracing {
		var err error

		tracer, err = otelhelper.NewTracer(ctx, "flowline-worker")
		if err != nil {
			logger.WarnContext(ctx, "Tracing disabled, failed to initialize exporter", "error", err)
		}
	}

	runner := workflow.NewRunner(p, registry, store, bus, tracer, workerID, logger)
	trigger := services.NewTrigger(p, bus, logger)
	trigger.SetEntityStore(store)

	dispatcher := scheduler.NewDispatcher(p, q, workerID, logger,
		scheduler.WithPollInterval(cfg.PollInterval))

	return &Worker{
		workerID:    workerID,
		logger:      logger,
		persistence: p,
		eventBus:    bus,
		queue:       q,
		dispatcher:  dispatcher,
		pool:        scheduler.NewPool(q, runner, cfg.Concurrency, logger),
		sweep:       scheduler.NewStaleSweep(p, 0, 0, logger),
		cron:        scheduler.NewCronFirer(p, trigger, 0, logger),
		stats:       stats.NewAggregator(p, 0, logger),
	}, nil
}

// Run starts every loop and blocks until SIGINT/SIGTERM or context
// cancellation.
func (w *Worker) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w.logger.InfoContext(ctx, "Worker started")

	var wg sync.WaitGroup

	loops := []func(context.Context) error{
		w.dispatcher.Run,
		w.pool.Run,
		w.sweep.Run,
		w.cron.Run,
		w.stats.Run,
	}

	for _, loop := range loops {
		wg.Add(1)

		go func(run func(context.Context) error) {
			defer wg.Done()

			_ = run(ctx)
		}(loop)
	}

	<-ctx.Done()
	w.logger.Info("Shutting down worker")

	wg.Wait()

	return ctx.Err()
}

// Close releases the worker's external connections.
func (w *Worker) Close(ctx context.Context) {
	if err := w.queue.Close(); err != nil {
		w.logger.ErrorContext(ctx, "Failed to close queue", "error", err)
	}

	if err := w.eventBus.Close(); err != nil {
		w.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}

	if err := w.persistence.Close(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
	}
}
