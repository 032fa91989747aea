package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations.
// The status-guarded UPDATE statements are what enforce the
// at-most-one-runner-per-execution invariant across processes.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , workflow_id
  , entity_type
  , entity_id
  , input
  , dedup_key
  , status
  , current_action
  , action_results
  , error
  , scheduled_at
  , next_attempt_at
  , logs
  , triggered_by
  , claimed_by
  , cancelled_by
  , cancel_reason
  , created_at
  , updated_at
  , finished_at
`

// Create inserts a new execution record.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	inputJSON, resultsJSON, logsJSON, err := marshalExecutionJSON(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, entity_type, entity_id, input, dedup_key,
			status, current_action, action_results, error,
			scheduled_at, next_attempt_at, logs,
			triggered_by, claimed_by, cancelled_by, cancel_reason,
			created_at, updated_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.EntityType,
		execution.EntityID,
		inputJSON,
		execution.DedupKey,
		execution.Status,
		execution.CurrentAction,
		resultsJSON,
		execution.Error,
		execution.ScheduledAt,
		execution.NextAttemptAt,
		logsJSON,
		execution.TriggeredBy,
		execution.ClaimedBy,
		execution.CancelledBy,
		execution.CancelReason,
		execution.CreatedAt,
		execution.UpdatedAt,
		execution.FinishedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

// GetByID returns an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// List returns executions matching the options, newest first, plus the
// total count before pagination.
func (r *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.Execution, int64, error) {
	where := " WHERE 1=1"
	args := make([]any, 0, 6)

	if opts.WorkflowID != "" {
		args = append(args, opts.WorkflowID)
		where += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}

	if opts.EntityType != "" {
		args = append(args, opts.EntityType)
		where += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}

	if opts.EntityID != "" {
		args = append(args, opts.EntityID)
		where += fmt.Sprintf(" AND entity_id = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions"+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}

	query := `SELECT ` + executionColumns + ` FROM executions` + where + " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	executions, err := r.queryExecutions(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return executions, total, nil
}

// Update persists the execution guarded by the expected stored status.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution, expected models.ExecutionStatus) error {
	if execution.Status != expected && !models.CanTransition(expected, execution.Status) {
		return persistence.NewExecutionError("Update", execution.ID,
			fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidTransition, expected, execution.Status))
	}

	inputJSON, resultsJSON, logsJSON, err := marshalExecutionJSON(execution)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	execution.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE executions SET
			status = $3
		  , current_action = $4
		  , action_results = $5
		  , error = $6
		  , scheduled_at = $7
		  , next_attempt_at = $8
		  , logs = $9
		  , claimed_by = $10
		  , cancelled_by = $11
		  , cancel_reason = $12
		  , updated_at = $13
		  , finished_at = $14
		  , input = $15
		  , dedup_key = $16
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		expected,
		execution.Status,
		execution.CurrentAction,
		resultsJSON,
		execution.Error,
		execution.ScheduledAt,
		execution.NextAttemptAt,
		logsJSON,
		execution.ClaimedBy,
		execution.CancelledBy,
		execution.CancelReason,
		execution.UpdatedAt,
		execution.FinishedAt,
		inputJSON,
		execution.DedupKey,
	)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	if affected == 0 {
		return r.conflictOrMissing(ctx, "Update", execution.ID)
	}

	return nil
}

// Claim atomically transitions id from the given claimable status to
// RUNNING. Exactly one of several racing claimers succeeds; the others
// observe ErrConcurrencyConflict.
func (r *ExecutionRepository) Claim(ctx context.Context, id string, from models.ExecutionStatus, workerID string, now time.Time) (*models.Execution, error) {
	if !models.CanTransition(from, models.ExecutionRunning) {
		return nil, persistence.NewExecutionError("Claim", id,
			fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidTransition, from, models.ExecutionRunning))
	}

	query := `
		UPDATE executions SET
			status = $3
		  , claimed_by = $4
		  , updated_at = $5
		WHERE id = $1 AND status = $2
		RETURNING ` + executionColumns

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query,
		id, from, models.ExecutionRunning, workerID, now.UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.conflictOrMissing(ctx, "Claim", id)
		}

		return nil, persistence.NewExecutionError("Claim", id, err)
	}

	return execution, nil
}

// ListDue returns claimable executions whose timer has elapsed, oldest first.
func (r *ExecutionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE (status = $1 AND (scheduled_at IS NULL OR scheduled_at <= $3))
		   OR (status IN ($2, $4) AND (next_attempt_at IS NULL OR next_attempt_at <= $3))
		ORDER BY created_at ASC
		LIMIT $5
	`

	return r.queryExecutions(ctx, query,
		models.ExecutionPending,
		models.ExecutionDelayed,
		now.UTC(),
		models.ExecutionRetrying,
		limit,
	)
}

// ListStaleRunning returns RUNNING executions not touched since olderThan.
func (r *ExecutionRepository) ListStaleRunning(ctx context.Context, olderThan time.Time, limit int) ([]*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`

	return r.queryExecutions(ctx, query, models.ExecutionRunning, olderThan.UTC(), limit)
}

// FindByDedupKey returns the non-terminal execution carrying the key.
func (r *ExecutionRepository) FindByDedupKey(ctx context.Context, workflowID, key string) (*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE workflow_id = $1 AND dedup_key = $2 AND status NOT IN ($3, $4, $5)
		ORDER BY created_at DESC
		LIMIT 1
	`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query,
		workflowID, key,
		models.ExecutionCompleted, models.ExecutionFailed, models.ExecutionCancelled,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to query dedup key %s: %w", key, err)
	}

	return execution, nil
}

// RecordResults persists action results and logs without touching status.
func (r *ExecutionRepository) RecordResults(ctx context.Context, execution *models.Execution) error {
	_, resultsJSON, logsJSON, err := marshalExecutionJSON(execution)
	if err != nil {
		return persistence.NewExecutionError("RecordResults", execution.ID, err)
	}

	query := `
		UPDATE executions SET
			action_results = $2
		  , logs = $3
		  , updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, execution.ID, resultsJSON, logsJSON)
	if err != nil {
		return persistence.NewExecutionError("RecordResults", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("RecordResults", execution.ID, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("RecordResults", execution.ID, persistence.ErrExecutionNotFound)
	}

	return nil
}

// CountByStatus tallies a workflow's executions per status.
func (r *ExecutionRepository) CountByStatus(ctx context.Context, workflowID string) (map[models.ExecutionStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM executions WHERE workflow_id = $1 GROUP BY status`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count executions for workflow %s: %w", workflowID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	counts := make(map[models.ExecutionStatus]int64)

	for rows.Next() {
		var (
			status models.ExecutionStatus
			count  int64
		)

		err = rows.Scan(&status, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}

		counts[status] = count
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// conflictOrMissing distinguishes a lost conditional write from a
// missing record.
func (r *ExecutionRepository) conflictOrMissing(ctx context.Context, op, id string) error {
	var exists bool

	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM executions WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return persistence.NewExecutionError(op, id, err)
	}

	if !exists {
		return persistence.NewExecutionError(op, id, persistence.ErrExecutionNotFound)
	}

	return persistence.NewExecutionError(op, id, persistence.ErrConcurrencyConflict)
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func marshalExecutionJSON(execution *models.Execution) (inputJSON, resultsJSON, logsJSON []byte, err error) {
	inputJSON, err = json.Marshal(execution.Input)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal input: %w", err)
	}

	resultsJSON, err = json.Marshal(execution.ActionResults)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal action results: %w", err)
	}

	logsJSON, err = json.Marshal(execution.Logs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal logs: %w", err)
	}

	return inputJSON, resultsJSON, logsJSON, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution   models.Execution
		inputJSON   []byte
		resultsJSON []byte
		logsJSON    []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.EntityType,
		&execution.EntityID,
		&inputJSON,
		&execution.DedupKey,
		&execution.Status,
		&execution.CurrentAction,
		&resultsJSON,
		&execution.Error,
		&execution.ScheduledAt,
		&execution.NextAttemptAt,
		&logsJSON,
		&execution.TriggeredBy,
		&execution.ClaimedBy,
		&execution.CancelledBy,
		&execution.CancelReason,
		&execution.CreatedAt,
		&execution.UpdatedAt,
		&execution.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(inputJSON) > 0 {
		err = json.Unmarshal(inputJSON, &execution.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
	}

	err = json.Unmarshal(resultsJSON, &execution.ActionResults)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal action results: %w", err)
	}

	err = json.Unmarshal(logsJSON, &execution.Logs)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal logs: %w", err)
	}

	return &execution, nil
}
