package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/persistence"
)

// ExecutionRepository stores executions as JSON files. The shared mutex
// serializes the conditional writes so Claim/Update behave like their
// SQL counterparts within one process.
type ExecutionRepository struct {
	root string
	mu   *sync.Mutex
}

// NewExecutionRepository creates a new file-backed execution repository.
func NewExecutionRepository(root string, mu *sync.Mutex) *ExecutionRepository {
	return &ExecutionRepository{root: root, mu: mu}
}

func (r *ExecutionRepository) dir() string {
	return filepath.Join(r.root, "executions")
}

func (r *ExecutionRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

// Create persists a new execution record.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := validateID(execution.ID); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return r.write(execution)
}

// GetByID loads an execution by its identifier.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return r.read(id)
}

// List returns executions matching the options, newest first, plus the
// total count before pagination.
func (r *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.Execution, int64, error) {
	all, err := r.readAll()
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*models.Execution, 0, len(all))

	for _, execution := range all {
		if opts.WorkflowID != "" && execution.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.EntityType != "" && execution.EntityType != opts.EntityType {
			continue
		}

		if opts.EntityID != "" && execution.EntityID != opts.EntityID {
			continue
		}

		if opts.Status != nil && execution.Status != *opts.Status {
			continue
		}

		matched = append(matched, execution)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	return paginate(matched, opts.Limit, opts.Offset), total, nil
}

// Update persists the execution only if the stored status still equals
// expected, and the status change (if any) is a legal transition.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution, expected models.ExecutionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.read(execution.ID)
	if err != nil {
		return err
	}

	if stored.Status != expected {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrConcurrencyConflict)
	}

	if execution.Status != expected && !models.CanTransition(expected, execution.Status) {
		return persistence.NewExecutionError("Update", execution.ID,
			fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidTransition, expected, execution.Status))
	}

	execution.UpdatedAt = time.Now().UTC()

	return r.write(execution)
}

// Claim atomically transitions id from the given claimable status to
// RUNNING and stamps the worker.
func (r *ExecutionRepository) Claim(ctx context.Context, id string, from models.ExecutionStatus, workerID string, now time.Time) (*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, err := r.read(id)
	if err != nil {
		return nil, err
	}

	if execution.Status != from {
		return nil, persistence.NewExecutionError("Claim", id, persistence.ErrConcurrencyConflict)
	}

	if !models.CanTransition(from, models.ExecutionRunning) {
		return nil, persistence.NewExecutionError("Claim", id,
			fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidTransition, from, models.ExecutionRunning))
	}

	execution.Status = models.ExecutionRunning
	execution.ClaimedBy = workerID
	execution.UpdatedAt = now.UTC()

	err = r.write(execution)
	if err != nil {
		return nil, err
	}

	return execution, nil
}

// ListDue returns claimable executions whose timer has elapsed, oldest
// first.
func (r *ExecutionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	all, err := r.readAll()
	if err != nil {
		return nil, err
	}

	due := make([]*models.Execution, 0)

	for _, execution := range all {
		if execution.Due(now) {
			due = append(due, execution)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})

	if limit > 0 && limit < len(due) {
		due = due[:limit]
	}

	return due, nil
}

// ListStaleRunning returns RUNNING executions not touched since olderThan.
func (r *ExecutionRepository) ListStaleRunning(ctx context.Context, olderThan time.Time, limit int) ([]*models.Execution, error) {
	all, err := r.readAll()
	if err != nil {
		return nil, err
	}

	stale := make([]*models.Execution, 0)

	for _, execution := range all {
		if execution.Status == models.ExecutionRunning && execution.UpdatedAt.Before(olderThan) {
			stale = append(stale, execution)
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})

	if limit > 0 && limit < len(stale) {
		stale = stale[:limit]
	}

	return stale, nil
}

// FindByDedupKey returns the non-terminal execution carrying the key.
func (r *ExecutionRepository) FindByDedupKey(ctx context.Context, workflowID, key string) (*models.Execution, error) {
	all, err := r.readAll()
	if err != nil {
		return nil, err
	}

	for _, execution := range all {
		if execution.WorkflowID == workflowID && execution.DedupKey == key && !execution.Status.Terminal() {
			return execution, nil
		}
	}

	return nil, persistence.ErrExecutionNotFound
}

// RecordResults persists action results and logs without touching status.
func (r *ExecutionRepository) RecordResults(ctx context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.read(execution.ID)
	if err != nil {
		return err
	}

	stored.ActionResults = execution.ActionResults
	stored.Logs = execution.Logs
	stored.UpdatedAt = time.Now().UTC()

	return r.write(stored)
}

// CountByStatus tallies a workflow's executions per status.
func (r *ExecutionRepository) CountByStatus(ctx context.Context, workflowID string) (map[models.ExecutionStatus]int64, error) {
	all, err := r.readAll()
	if err != nil {
		return nil, err
	}

	counts := make(map[models.ExecutionStatus]int64)

	for _, execution := range all {
		if execution.WorkflowID == workflowID {
			counts[execution.Status]++
		}
	}

	return counts, nil
}

func (r *ExecutionRepository) read(id string) (*models.Execution, error) {
	data, err := os.ReadFile(r.path(id)) // #nosec G304 -- id is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("read", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	var execution models.Execution

	err = json.Unmarshal(data, &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) readAll() ([]*models.Execution, error) {
	entries, err := os.ReadDir(r.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Execution{}, nil
		}

		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	executions := make([]*models.Execution, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		id := entry.Name()[:len(entry.Name())-len(".json")]

		execution, err := r.read(id)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func (r *ExecutionRepository) write(execution *models.Execution) error {
	err := os.MkdirAll(r.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	err = os.WriteFile(r.path(execution.ID), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execution.ID, err)
	}

	return nil
}

// validateID rejects identifiers that are unsafe as file names.
func validateID(id string) error {
	if id == "" {
		return errors.New("identifier cannot be empty")
	}

	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return errors.New("identifier contains invalid characters")
	}

	return nil
}
