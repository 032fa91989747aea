// Package main provides the Flowline API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/trmhq/flowline/pkg/entity"
	"github.com/trmhq/flowline/pkg/eventbus"
	"github.com/trmhq/flowline/pkg/persistence"
	"github.com/trmhq/flowline/pkg/registry"
	"github.com/trmhq/flowline/pkg/services"
	"github.com/trmhq/flowline/pkg/web"
	"github.com/trmhq/flowline/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	store       entity.Store
	eventBus    eventbus.EventBus
	workerID    string
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	store entity.Store,
	eventBus eventbus.EventBus,
	workerID string,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		store:       store,
		eventBus:    eventBus,
		workerID:    workerID,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	runner := workflow.NewRunner(a.persistence, a.registry, a.store, a.eventBus, nil, a.workerID, a.logger)
	triggerService := services.NewTrigger(a.persistence, a.eventBus, a.logger)
	triggerService.SetEntityStore(a.store)
	executionService := services.NewExecution(a.persistence, a.eventBus, runner, a.workerID, a.logger)

	handlers := web.NewAPIHandlers(triggerService, executionService, a.persistence, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowline API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.ListWorkflows)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/trigger", handlers.TriggerWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)

	e := app.Group("/executions")
	e.Get("/", handlers.ListExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/execute", handlers.ExecuteNow)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Post("/:id/retry", handlers.RetryExecution)

	catalog := app.Group("/catalog")
	catalog.Get("/trigger-types", handlers.GetTriggerTypes)
	catalog.Get("/action-types", handlers.GetActionTypes)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
