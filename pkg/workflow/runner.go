// Package workflow drives claimed executions through their action list.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/trmhq/flowline/pkg/entity"
	"github.com/trmhq/flowline/pkg/eventbus"
	"github.com/trmhq/flowline/pkg/events"
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/otelhelper"
	"github.com/trmhq/flowline/pkg/persistence"
	"github.com/trmhq/flowline/pkg/protocol"
	"github.com/trmhq/flowline/pkg/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// errStopped signals that the execution was taken away mid-run, usually
// by a cancel. The in-flight action's result has already been recorded.
var errStopped = errors.New("execution no longer held by this runner")

// Runner executes one claimed execution at a time. It owns the status
// while the execution is RUNNING: every persisted write is guarded on
// that status, so a concurrent cancel wins the race and the runner
// backs off after recording the in-flight result.
type Runner struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	store       entity.Store
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	workerID    string
	logger      *slog.Logger
}

func NewRunner(
	p persistence.Persistence,
	reg *registry.Registry,
	store entity.Store,
	bus eventbus.EventBus,
	tracer trace.Tracer,
	workerID string,
	logger *slog.Logger,
) *Runner {
	if tracer == nil {
		tracer = otel.Tracer("flowline.runner")
	}

	return &Runner{
		persistence: p,
		registry:    reg,
		store:       store,
		eventBus:    bus,
		tracer:      tracer,
		workerID:    workerID,
		logger:      logger.With("module", "workflow_runner", "worker_id", workerID),
	}
}

// Run drives an execution that the caller has already claimed into
// RUNNING. It returns when the execution reaches a suspension point
// (DELAYED, RETRYING), a terminal state, or is cancelled from outside.
func (r *Runner) Run(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, err := r.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}

	if execution.Status != models.ExecutionRunning {
		return nil, fmt.Errorf("execution %s is %s, expected RUNNING", executionID, execution.Status)
	}

	workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	logger := r.logger.With(
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
	)

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "execution.run",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkerIDKey, r.workerID),
	)
	defer span.End()

	logger.InfoContext(ctx, "Running execution", "current_action", execution.CurrentAction)
	r.publish(ctx, execution, events.ExecutionStarted{
		BaseEvent: r.baseEvent(events.ExecutionStartedEvent, execution),
	})

	final, err := r.drive(ctx, logger, workflow, execution)
	if err != nil {
		if errors.Is(err, errStopped) {
			logger.InfoContext(ctx, "Execution taken over mid-run, stopping")

			return final, nil
		}

		otelhelper.SetError(span, err)

		return nil, err
	}

	return final, nil
}

// drive advances the action cursor until a suspension point or terminal
// state is persisted.
func (r *Runner) drive(ctx context.Context, logger *slog.Logger, workflow *models.Workflow, execution *models.Execution) (*models.Execution, error) {
	for execution.CurrentAction < len(workflow.Actions) {
		index := execution.CurrentAction
		spec := workflow.Actions[index]

		switch spec.Type {
		case models.ActionTypeDelay:
			return execution, r.applyDelay(ctx, logger, execution, spec, index)
		case models.ActionTypeCondition:
			done, err := r.applyCondition(ctx, logger, workflow, execution, spec, index)
			if err != nil || done {
				return execution, err
			}
		default:
			done, err := r.dispatch(ctx, logger, workflow, execution, spec, index)
			if err != nil || done {
				return execution, err
			}
		}
	}

	return execution, r.complete(ctx, logger, execution)
}

// dispatch runs one external action attempt. It returns done=true when
// the execution left RUNNING (retry scheduled or terminal failure).
func (r *Runner) dispatch(ctx context.Context, logger *slog.Logger, workflow *models.Workflow, execution *models.Execution, spec models.ActionSpec, index int) (bool, error) {
	result, err := execution.Result(index)
	if err != nil {
		return true, err
	}

	started := time.Now().UTC()

	result.Status = models.ActionRunning
	result.Attempt++
	if result.StartedAt == nil {
		result.StartedAt = &started
	}

	attempt := result.Attempt

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "execution.action",
		attribute.String(otelhelper.ActionTypeKey, string(spec.Type)),
		attribute.Int(otelhelper.ActionIndexKey, index),
		attribute.Int(otelhelper.AttemptKey, attempt),
	)
	defer span.End()

	output, handlerErr := r.invokeHandler(ctx, workflow, execution, spec, attempt)

	finished := time.Now().UTC()
	result.Attempts = append(result.Attempts, models.AttemptRecord{
		Attempt:    attempt,
		Error:      errString(handlerErr),
		StartedAt:  started,
		FinishedAt: finished,
	})

	if handlerErr == nil {
		result.Status = models.ActionSuccess
		result.Error = ""
		result.Output = output
		result.FinishedAt = &finished

		execution.AppendLog(models.LogInfo, actionSource(index),
			fmt.Sprintf("action %s succeeded on attempt %d", spec.Type, attempt))
		execution.CurrentAction = index + 1

		logger.InfoContext(ctx, "Action succeeded",
			"action_index", index, "action_type", spec.Type, "attempt", attempt)

		return false, r.save(ctx, execution)
	}

	// Failures are data: recorded on the result entry and the logs,
	// never propagated as a crash.
	otelhelper.SetError(span, handlerErr)

	result.Error = handlerErr.Error()
	result.Status = models.ActionFailed

	execution.AppendLog(models.LogError, actionSource(index),
		fmt.Sprintf("action %s failed on attempt %d: %v", spec.Type, attempt, handlerErr))

	logger.WarnContext(ctx, "Action failed",
		"action_index", index, "action_type", spec.Type, "attempt", attempt, "error", handlerErr)

	if attempt < spec.MaxAttempts() {
		return true, r.scheduleRetry(ctx, logger, execution, spec, index, attempt, handlerErr)
	}

	return r.applyFailurePolicy(ctx, logger, execution, spec, index, handlerErr)
}

// invokeHandler creates the handler from the registry and executes it
// under the action's bounded timeout. A timeout or an entity fetch
// failure counts as a failure like any other.
func (r *Runner) invokeHandler(ctx context.Context, workflow *models.Workflow, execution *models.Execution, spec models.ActionSpec, attempt int) (any, error) {
	handler, err := r.registry.Create(string(spec.Type), spec.Config)
	if err != nil {
		return nil, err
	}

	entityDoc, err := r.entityDoc(ctx, execution)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, spec.Timeout())
	defer cancel()

	result, err := handler.Execute(ctx, protocol.HandlerRequest{
		Execution:  execution,
		Workflow:   workflow,
		ActionSpec: spec,
		Attempt:    attempt,
		Entity:     entityDoc,
	}, r.logger)
	if err != nil {
		return nil, err
	}

	if result == nil {
		return nil, nil
	}

	return result.Output, nil
}

// entityDoc loads the subject entity's current document. It is fetched
// fresh for every action so a status written by update_status is
// visible to later conditions and templates. A missing entity or an
// unset store degrades to the identity fields; a store failure is an
// error the caller turns into a retryable action failure.
func (r *Runner) entityDoc(ctx context.Context, execution *models.Execution) (map[string]any, error) {
	doc := map[string]any{
		"type": string(execution.EntityType),
		"id":   execution.EntityID,
	}

	if r.store == nil {
		return doc, nil
	}

	snapshot, err := r.store.Get(ctx, execution.EntityType, execution.EntityID)
	if err != nil {
		if entity.IsEntityNotFound(err) {
			return doc, nil
		}

		return nil, fmt.Errorf("failed to load entity %s/%s: %w", execution.EntityType, execution.EntityID, err)
	}

	for k, v := range snapshot {
		doc[k] = v
	}

	doc["type"] = string(execution.EntityType)
	doc["id"] = execution.EntityID

	return doc, nil
}

// scheduleRetry parks the execution in RETRYING with the backoff stamp.
func (r *Runner) scheduleRetry(ctx context.Context, logger *slog.Logger, execution *models.Execution, spec models.ActionSpec, index, attempt int, cause error) error {
	nextAttempt := time.Now().UTC().Add(backoffInterval(spec.Retry, attempt))

	execution.Status = models.ExecutionRetrying
	execution.NextAttemptAt = &nextAttempt
	execution.AppendLog(models.LogWarn, actionSource(index),
		fmt.Sprintf("retry %d/%d scheduled for %s", attempt+1, spec.MaxAttempts(), nextAttempt.Format(time.RFC3339)))

	if err := r.save(ctx, execution); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Retry scheduled",
		"action_index", index, "attempt", attempt, "next_attempt_at", nextAttempt)

	r.publish(ctx, execution, events.ExecutionRetrying{
		BaseEvent:     r.baseEvent(events.ExecutionRetryingEvent, execution),
		ActionIndex:   index,
		Attempt:       attempt,
		NextAttemptAt: nextAttempt,
		Error:         cause.Error(),
	})

	return nil
}

// applyFailurePolicy decides what happens after retries are exhausted.
func (r *Runner) applyFailurePolicy(ctx context.Context, logger *slog.Logger, execution *models.Execution, spec models.ActionSpec, index int, cause error) (bool, error) {
	switch spec.OnFailure.Action {
	case models.FailureContinue:
		execution.AppendLog(models.LogWarn, actionSource(index),
			"retries exhausted, continuing to next action")
		execution.CurrentAction = index + 1

		return false, r.save(ctx, execution)
	case models.FailureSkipTo:
		target := spec.OnFailure.SkipTo

		if target <= index || target > len(execution.ActionResults) {
			return true, r.fail(ctx, logger, execution, index,
				fmt.Errorf("invalid skip_to target %d: %w", target, cause))
		}

		r.markSkipped(execution, index+1, target)
		execution.AppendLog(models.LogWarn, actionSource(index),
			fmt.Sprintf("retries exhausted, skipping to action %d", target))
		execution.CurrentAction = target

		return false, r.save(ctx, execution)
	default:
		return true, r.fail(ctx, logger, execution, index, cause)
	}
}

// applyDelay parks the execution in DELAYED until the configured pause
// elapses. The pause is data, not a blocked goroutine.
func (r *Runner) applyDelay(ctx context.Context, logger *slog.Logger, execution *models.Execution, spec models.ActionSpec, index int) error {
	seconds, err := spec.DelaySeconds()
	if err != nil {
		return r.fail(ctx, logger, execution, index, err)
	}

	now := time.Now().UTC()
	resumeAt := now.Add(time.Duration(seconds) * time.Second)

	result, err := execution.Result(index)
	if err != nil {
		return err
	}

	result.Status = models.ActionSuccess
	result.Attempt = 1
	result.StartedAt = &now
	result.FinishedAt = &now
	result.Output = map[string]any{"seconds": seconds, "resume_at": resumeAt.Format(time.RFC3339)}

	execution.Status = models.ExecutionDelayed
	execution.NextAttemptAt = &resumeAt
	execution.CurrentAction = index + 1
	execution.AppendLog(models.LogInfo, actionSource(index),
		fmt.Sprintf("delaying %d seconds until %s", seconds, resumeAt.Format(time.RFC3339)))

	if err := r.save(ctx, execution); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Execution delayed", "action_index", index, "resume_at", resumeAt)

	r.publish(ctx, execution, events.ExecutionDelayed{
		BaseEvent:   r.baseEvent(events.ExecutionDelayedEvent, execution),
		ActionIndex: index,
		ResumeAt:    resumeAt,
	})

	return nil
}

// applyCondition evaluates the predicate list against the execution's
// data. True advances; false follows the failure policy: abort, jump
// forward, or complete with the remaining actions SKIPPED.
func (r *Runner) applyCondition(ctx context.Context, logger *slog.Logger, workflow *models.Workflow, execution *models.Execution, spec models.ActionSpec, index int) (bool, error) {
	predicates, err := spec.ConditionPredicates()
	if err != nil {
		return true, r.fail(ctx, logger, execution, index, err)
	}

	entityDoc, err := r.entityDoc(ctx, execution)
	if err != nil {
		return r.recordFetchFailure(ctx, logger, execution, spec, index, err)
	}

	matched, err := models.EvaluateAll(predicates, conditionDoc(execution, entityDoc))
	if err != nil {
		return true, r.fail(ctx, logger, execution, index, err)
	}

	now := time.Now().UTC()

	result, err := execution.Result(index)
	if err != nil {
		return true, err
	}

	result.Attempt = 1
	result.StartedAt = &now
	result.FinishedAt = &now
	result.Output = map[string]any{"matched": matched}

	if matched {
		result.Status = models.ActionSuccess
		execution.AppendLog(models.LogInfo, actionSource(index), "condition matched, continuing")
		execution.CurrentAction = index + 1

		return false, r.save(ctx, execution)
	}

	switch spec.OnFailure.Action {
	case models.FailureSkipTo:
		target := spec.OnFailure.SkipTo

		if target <= index || target > len(execution.ActionResults) {
			return true, r.fail(ctx, logger, execution, index,
				fmt.Errorf("invalid skip_to target %d for condition", target))
		}

		result.Status = models.ActionSuccess

		r.markSkipped(execution, index+1, target)
		execution.AppendLog(models.LogInfo, actionSource(index),
			fmt.Sprintf("condition not matched, skipping to action %d", target))
		execution.CurrentAction = target

		return false, r.save(ctx, execution)
	case models.FailureAbort:
		result.Status = models.ActionFailed
		result.Error = "condition not matched"

		return true, r.fail(ctx, logger, execution, index, errors.New("condition not matched"))
	default:
		// Complete early with everything after the condition skipped.
		result.Status = models.ActionSuccess

		r.markSkipped(execution, index+1, len(execution.ActionResults))
		execution.AppendLog(models.LogInfo, actionSource(index),
			"condition not matched, completing with remaining actions skipped")
		execution.CurrentAction = len(execution.ActionResults)

		return true, r.complete(ctx, logger, execution)
	}
}

// recordFetchFailure books an entity store failure as a failed attempt
// so condition actions get the same retry treatment as external calls.
func (r *Runner) recordFetchFailure(ctx context.Context, logger *slog.Logger, execution *models.Execution, spec models.ActionSpec, index int, cause error) (bool, error) {
	result, err := execution.Result(index)
	if err != nil {
		return true, err
	}

	now := time.Now().UTC()

	result.Attempt++
	if result.StartedAt == nil {
		result.StartedAt = &now
	}

	result.Status = models.ActionFailed
	result.Error = cause.Error()
	result.Attempts = append(result.Attempts, models.AttemptRecord{
		Attempt:    result.Attempt,
		Error:      cause.Error(),
		StartedAt:  now,
		FinishedAt: now,
	})

	execution.AppendLog(models.LogError, actionSource(index),
		fmt.Sprintf("action %s failed on attempt %d: %v", spec.Type, result.Attempt, cause))

	logger.WarnContext(ctx, "Action failed",
		"action_index", index, "action_type", spec.Type, "attempt", result.Attempt, "error", cause)

	if result.Attempt < spec.MaxAttempts() {
		return true, r.scheduleRetry(ctx, logger, execution, spec, index, result.Attempt, cause)
	}

	return r.applyFailurePolicy(ctx, logger, execution, spec, index, cause)
}

// complete persists the COMPLETED terminal state.
func (r *Runner) complete(ctx context.Context, logger *slog.Logger, execution *models.Execution) error {
	now := time.Now().UTC()

	execution.Status = models.ExecutionCompleted
	execution.NextAttemptAt = nil
	execution.FinishedAt = &now
	execution.AppendLog(models.LogInfo, "runner", "execution completed")

	if err := r.save(ctx, execution); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Execution completed")

	r.publish(ctx, execution, events.ExecutionCompleted{
		BaseEvent: r.baseEvent(events.ExecutionCompletedEvent, execution),
		Duration:  now.Sub(execution.CreatedAt),
	})

	return nil
}

// fail persists the FAILED terminal state with the last error preserved.
func (r *Runner) fail(ctx context.Context, logger *slog.Logger, execution *models.Execution, index int, cause error) error {
	now := time.Now().UTC()

	execution.Status = models.ExecutionFailed
	execution.Error = cause.Error()
	execution.NextAttemptAt = nil
	execution.FinishedAt = &now
	execution.AppendLog(models.LogError, "runner",
		fmt.Sprintf("execution failed at action %d: %v", index, cause))

	if err := r.save(ctx, execution); err != nil {
		return err
	}

	logger.WarnContext(ctx, "Execution failed", "action_index", index, "error", cause)

	r.publish(ctx, execution, events.ExecutionFailed{
		BaseEvent:   r.baseEvent(events.ExecutionFailedEvent, execution),
		ActionIndex: index,
		Error:       cause.Error(),
		Duration:    now.Sub(execution.CreatedAt),
	})

	return nil
}

// save writes the execution guarded on RUNNING. Losing the guard means
// someone else changed the status underneath us; a cancel is the
// expected case, and the in-flight results are still recorded so the
// audit trail keeps the finished call's outcome.
func (r *Runner) save(ctx context.Context, execution *models.Execution) error {
	err := r.persistence.ExecutionRepository().Update(ctx, execution, models.ExecutionRunning)
	if err == nil {
		return nil
	}

	if !persistence.IsConcurrencyConflict(err) {
		return fmt.Errorf("failed to persist execution: %w", err)
	}

	current, getErr := r.persistence.ExecutionRepository().GetByID(ctx, execution.ID)
	if getErr != nil {
		return fmt.Errorf("failed to persist execution: %w", err)
	}

	if current.Status == models.ExecutionCancelled {
		execution.AppendLog(models.LogInfo, "runner",
			"cancel observed, recording in-flight result and stopping")

		if recErr := r.persistence.ExecutionRepository().RecordResults(ctx, execution); recErr != nil {
			r.logger.WarnContext(ctx, "Failed to record late results",
				"execution_id", execution.ID, "error", recErr)
		}

		execution.Status = models.ExecutionCancelled

		return errStopped
	}

	return fmt.Errorf("failed to persist execution: %w", err)
}

func (r *Runner) markSkipped(execution *models.Execution, from, to int) {
	for i := from; i < to && i < len(execution.ActionResults); i++ {
		execution.ActionResults[i].Status = models.ActionSkipped
	}
}

func (r *Runner) baseEvent(eventType events.EventType, execution *models.Execution) events.BaseEvent {
	var id string
	if r.eventBus != nil {
		id = r.eventBus.GenerateID()
	}

	return events.BaseEvent{
		ID:          id,
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ID,
		WorkerID:    r.workerID,
	}
}

func (r *Runner) publish(ctx context.Context, execution *models.Execution, event eventbus.Event) {
	if r.eventBus == nil {
		return
	}

	if err := r.eventBus.Publish(ctx, execution.ID, event); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish event",
			"execution_id", execution.ID, "event_type", event.GetType(), "error", err)
	}
}

// conditionDoc exposes the execution's data to condition predicates
// under the same namespaces templates use.
func conditionDoc(execution *models.Execution, entityDoc map[string]any) map[string]any {
	results := make(map[string]any, len(execution.ActionResults))
	for i, result := range execution.ActionResults {
		if result.Output != nil {
			results[strconv.Itoa(i)] = result.Output
		}
	}

	return map[string]any{
		"input":   execution.Input,
		"results": results,
		"entity":  entityDoc,
	}
}

func actionSource(index int) string {
	return "action[" + strconv.Itoa(index) + "]"
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
