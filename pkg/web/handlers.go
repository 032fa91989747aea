// Package web provides the HTTP handlers for triggering workflows and
// operating on executions.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/persistence"
	"github.com/trmhq/flowline/pkg/registry"
	"github.com/trmhq/flowline/pkg/services"
)

type APIHandlers struct {
	triggerService   *services.Trigger
	executionService *services.Execution
	persistence      persistence.Persistence
	validator        *validator.Validate
	registry         *registry.Registry
}

func NewAPIHandlers(
	triggerService *services.Trigger,
	executionService *services.Execution,
	p persistence.Persistence,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		triggerService:   triggerService,
		executionService: executionService,
		persistence:      p,
		validator:        validator,
		registry:         registry,
	}
}

// TriggerWorkflow fires a workflow against an entity.
func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req TriggerWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.triggerService.Fire(c.Context(), services.TriggerRequest{
		WorkflowID:  workflowID,
		EntityType:  models.EntityType(req.EntityType),
		EntityID:    req.EntityID,
		Input:       req.Input,
		TriggeredBy: req.TriggeredBy,
		DedupKey:    req.DedupKey,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	response := TriggerWorkflowResponse{
		Accepted:     result.Accepted,
		ExecutionID:  result.ExecutionID,
		Reason:       result.Reason,
		Deduplicated: result.Deduplicated,
	}

	if !result.Accepted {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(response)
	}

	return c.Status(fiber.StatusCreated).JSON(response)
}

// ExecuteWorkflow fires a workflow and drives the resulting execution
// synchronously, returning its final state. Used for admin "run now".
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req TriggerWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.triggerService.Fire(c.Context(), services.TriggerRequest{
		WorkflowID:  workflowID,
		EntityType:  models.EntityType(req.EntityType),
		EntityID:    req.EntityID,
		Input:       req.Input,
		TriggeredBy: req.TriggeredBy,
		DedupKey:    req.DedupKey,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	if !result.Accepted {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(TriggerWorkflowResponse{
			Accepted: false,
			Reason:   result.Reason,
		})
	}

	execution, err := h.executionService.ExecuteNow(c.Context(), result.ExecutionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// ExecuteNow claims a due execution and runs it synchronously.
func (h *APIHandlers) ExecuteNow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executionService.ExecuteNow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// GetExecution returns one execution with its results and logs.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executionService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// ListExecutions returns executions matching the query filters.
func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	req, err := h.parseListExecutionsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.executionService.List(c.Context(), persistence.ListExecutionsOptions{
		WorkflowID: req.WorkflowID,
		EntityType: models.EntityType(req.EntityType),
		EntityID:   req.EntityID,
		Status:     req.Status,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":    result.Executions,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

func (h *APIHandlers) parseListExecutionsRequest(c fiber.Ctx) (*ListExecutionsRequest, error) {
	req := &ListExecutionsRequest{
		WorkflowID: c.Query("workflow_id"),
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.ExecutionStatus(statusStr)
		req.Status = &status
	}

	return req, nil
}

// CancelExecution moves a non-terminal execution to CANCELLED.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	var req CancelExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.executionService.Cancel(c.Context(), id, req.CancelledBy, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// RetryExecution restarts a FAILED execution from the first action.
func (h *APIHandlers) RetryExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	result, err := h.executionService.Retry(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// GetWorkflow serves a read-only definition lookup.
func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.persistence.WorkflowRepository().GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

// ListWorkflows serves a read-only definition listing.
func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	opts := persistence.ListWorkflowsOptions{}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		opts.Status = &status
	}

	if triggerStr := c.Query("trigger_type"); triggerStr != "" {
		triggerType := models.TriggerType(triggerStr)
		opts.TriggerType = &triggerType
	}

	workflows, err := h.persistence.WorkflowRepository().List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

// GetTriggerTypes serves the static trigger type catalog.
func (h *APIHandlers) GetTriggerTypes(c fiber.Ctx) error {
	return c.JSON(models.TriggerTypeCatalog())
}

// GetActionTypes serves the action type catalog with the registered
// config schemas.
func (h *APIHandlers) GetActionTypes(c fiber.Ctx) error {
	catalog := models.ActionTypeCatalog()

	entries := make([]fiber.Map, 0, len(catalog))

	for _, descriptor := range catalog {
		entry := fiber.Map{
			"type":        descriptor.Type,
			"name":        descriptor.Name,
			"description": descriptor.Description,
		}

		if schema, err := h.registry.Schema(descriptor.Type); err == nil && schema != nil {
			entry["config_schema"] = schema
		}

		entries = append(entries, entry)
	}

	return c.JSON(entries)
}

// HealthCheck reports the health of the registry and the store.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.executionService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
