package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/persistence"
	"github.com/trmhq/flowline/pkg/services"
)

func createExecution(t *testing.T, p persistence.Persistence, workflow *models.Workflow, status models.ExecutionStatus) *models.Execution {
	t.Helper()

	ctx := context.Background()

	execution, err := models.NewExecution(workflow, models.EntityTypeCandidate, "cand-1", nil, "test")
	require.NoError(t, err)
	require.NoError(t, p.ExecutionRepository().Create(ctx, execution))

	if status != models.ExecutionPending {
		claimed, err := p.ExecutionRepository().Claim(ctx, execution.ID, models.ExecutionPending, "w1", time.Now())
		require.NoError(t, err)

		if status != models.ExecutionRunning {
			claimed.Status = status
			require.NoError(t, p.ExecutionRepository().Update(ctx, claimed, models.ExecutionRunning))
		}

		return claimed
	}

	return execution
}

func TestExecution_Cancel(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, nil)
	execution := createExecution(t, p, workflow, models.ExecutionPending)

	svc := services.NewExecution(p, nil, nil, "worker-1", testLogger())

	result, err := svc.Cancel(ctx, execution.ID, "admin", "no longer needed")
	require.NoError(t, err)
	assert.True(t, result.Cancelled)

	loaded, err := p.ExecutionRepository().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCancelled, loaded.Status)
	assert.Equal(t, "admin", loaded.CancelledBy)
	assert.Equal(t, "no longer needed", loaded.CancelReason)
	require.NotEmpty(t, loaded.Logs)
	assert.Contains(t, loaded.Logs[len(loaded.Logs)-1].Message, "cancelled by admin")
}

func TestExecution_CancelTerminalIsNoOp(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, nil)
	execution := createExecution(t, p, workflow, models.ExecutionCompleted)

	svc := services.NewExecution(p, nil, nil, "worker-1", testLogger())

	result, err := svc.Cancel(ctx, execution.ID, "admin", "too late")
	require.NoError(t, err)
	assert.False(t, result.Cancelled)
	assert.Equal(t, models.ExecutionCompleted, result.Status)

	// Second cancel of an already cancelled execution is also a no-op
	cancelled := createExecution(t, p, workflow, models.ExecutionCancelled)

	result, err = svc.Cancel(ctx, cancelled.ID, "admin", "again")
	require.NoError(t, err)
	assert.False(t, result.Cancelled)
}

func TestExecution_Retry(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, nil)

	execution := createExecution(t, p, workflow, models.ExecutionRunning)
	execution.Status = models.ExecutionFailed
	execution.Error = "smtp down"
	execution.CurrentAction = 0
	execution.ActionResults[0] = models.ActionResult{
		Status:  models.ActionFailed,
		Attempt: 3,
		Error:   "smtp down",
	}
	require.NoError(t, p.ExecutionRepository().Update(ctx, execution, models.ExecutionRunning))

	svc := services.NewExecution(p, nil, nil, "worker-1", testLogger())

	result, err := svc.Retry(ctx, execution.ID)
	require.NoError(t, err)
	assert.True(t, result.Retried)

	loaded, err := p.ExecutionRepository().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPending, loaded.Status)
	assert.Equal(t, 0, loaded.CurrentAction)
	assert.Empty(t, loaded.Error)
	assert.Equal(t, models.ActionPending, loaded.ActionResults[0].Status)
	assert.Equal(t, 0, loaded.ActionResults[0].Attempt)
	require.NotEmpty(t, loaded.Logs)
}

func TestExecution_RetryNonFailed(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, nil)
	execution := createExecution(t, p, workflow, models.ExecutionPending)

	svc := services.NewExecution(p, nil, nil, "worker-1", testLogger())

	_, err := svc.Retry(ctx, execution.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrNotFailed)
}

func TestExecution_List(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, nil)

	for range 3 {
		createExecution(t, p, workflow, models.ExecutionPending)
	}

	svc := services.NewExecution(p, nil, nil, "worker-1", testLogger())

	resp, err := svc.List(ctx, persistence.ListExecutionsOptions{
		WorkflowID: workflow.ID,
		Limit:      2,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Executions, 2)
	assert.Equal(t, int64(3), resp.TotalCount)
	assert.True(t, resp.HasNextPage)
}

type runNowRunner struct {
	p persistence.Persistence
}

func (r runNowRunner) Run(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, err := r.p.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionCompleted
	execution.FinishedAt = &now

	err = r.p.ExecutionRepository().Update(ctx, execution, models.ExecutionRunning)
	if err != nil {
		return nil, err
	}

	return execution, nil
}

func TestExecution_ExecuteNow(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, nil)
	execution := createExecution(t, p, workflow, models.ExecutionPending)

	svc := services.NewExecution(p, nil, runNowRunner{p: p}, "worker-1", testLogger())

	result, err := svc.ExecuteNow(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, result.Status)
}

func TestExecution_ExecuteNowNotClaimable(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, nil)
	execution := createExecution(t, p, workflow, models.ExecutionCompleted)

	svc := services.NewExecution(p, nil, runNowRunner{p: p}, "worker-1", testLogger())

	_, err := svc.ExecuteNow(ctx, execution.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
}
