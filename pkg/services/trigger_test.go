package services_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trmhq/flowline/pkg/entity"
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/persistence"
	"github.com/trmhq/flowline/pkg/persistence/file"
	"github.com/trmhq/flowline/pkg/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPersistence(t *testing.T) persistence.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func saveWorkflow(t *testing.T, p persistence.Persistence, mutate func(*models.Workflow)) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		ID:     "wf-1",
		Name:   "Candidate welcome",
		Status: models.WorkflowStatusActive,
		Trigger: models.TriggerSpec{
			Type:       models.TriggerTypeEntityCreated,
			EntityType: models.EntityTypeCandidate,
		},
		Actions: []models.ActionSpec{
			{Type: models.ActionTypeSendEmail, Config: map[string]any{"to": "a@b.c", "subject": "hi"}},
		},
	}

	if mutate != nil {
		mutate(workflow)
	}

	require.NoError(t, p.WorkflowRepository().Save(context.Background(), workflow))

	return workflow
}

func TestTrigger_Fire(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, nil)

	trigger := services.NewTrigger(p, nil, testLogger())

	result, err := trigger.Fire(ctx, services.TriggerRequest{
		WorkflowID:  workflow.ID,
		EntityType:  models.EntityTypeCandidate,
		EntityID:    "cand-1",
		Input:       map[string]any{"name": "Alice"},
		TriggeredBy: "api",
	})
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	require.NotEmpty(t, result.ExecutionID)

	execution, err := p.ExecutionRepository().GetByID(ctx, result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPending, execution.Status)
	require.Len(t, execution.ActionResults, 1)
	assert.Equal(t, models.ActionPending, execution.ActionResults[0].Status)

	loaded, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Stats.ExecutionsStarted)
}

func TestTrigger_FireValidation(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)

	trigger := services.NewTrigger(p, nil, testLogger())

	_, err := trigger.Fire(ctx, services.TriggerRequest{WorkflowID: "wf-1"})
	assert.True(t, services.IsValidationError(err))

	_, err = trigger.Fire(ctx, services.TriggerRequest{
		WorkflowID: "wf-1",
		EntityType: "spaceship",
		EntityID:   "x",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrUnknownEntityType)
}

func TestTrigger_FireTypeMismatch(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, nil)

	trigger := services.NewTrigger(p, nil, testLogger())

	_, err := trigger.Fire(ctx, services.TriggerRequest{
		WorkflowID: workflow.ID,
		EntityType: models.EntityTypeJob,
		EntityID:   "job-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrTypeMismatch)
}

func TestTrigger_FireInactiveWorkflow(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, func(w *models.Workflow) {
		w.Status = models.WorkflowStatusPaused
	})

	trigger := services.NewTrigger(p, nil, testLogger())

	result, err := trigger.Fire(ctx, services.TriggerRequest{
		WorkflowID: workflow.ID,
		EntityType: models.EntityTypeCandidate,
		EntityID:   "cand-1",
	})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Contains(t, result.Reason, "paused")
}

func TestTrigger_FireConditionNotMet(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, func(w *models.Workflow) {
		w.Trigger.Conditions = []models.Condition{
			{Field: "source", Operator: models.OpEqual, Value: "employee"},
		}
	})

	trigger := services.NewTrigger(p, nil, testLogger())

	result, err := trigger.Fire(ctx, services.TriggerRequest{
		WorkflowID: workflow.ID,
		EntityType: models.EntityTypeCandidate,
		EntityID:   "cand-1",
		Input:      map[string]any{"source": "job_board"},
	})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, "trigger conditions not met", result.Reason)

	// No execution was created for the declined trigger
	executions, _, err := p.ExecutionRepository().List(ctx, persistence.ListExecutionsOptions{WorkflowID: workflow.ID})
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestTrigger_FireDedupKey(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, nil)

	trigger := services.NewTrigger(p, nil, testLogger())

	req := services.TriggerRequest{
		WorkflowID: workflow.ID,
		EntityType: models.EntityTypeCandidate,
		EntityID:   "cand-1",
		DedupKey:   "delivery-1",
	}

	first, err := trigger.Fire(ctx, req)
	require.NoError(t, err)

	second, err := trigger.Fire(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.ExecutionID, second.ExecutionID)
}

func TestTrigger_FireScheduled(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, nil)

	trigger := services.NewTrigger(p, nil, testLogger())

	scheduledAt := time.Now().Add(time.Hour).UTC()

	result, err := trigger.Fire(ctx, services.TriggerRequest{
		WorkflowID:  workflow.ID,
		EntityType:  models.EntityTypeCandidate,
		EntityID:    "cand-1",
		ScheduledAt: &scheduledAt,
	})
	require.NoError(t, err)

	execution, err := p.ExecutionRepository().GetByID(ctx, result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionDelayed, execution.Status)
	require.NotNil(t, execution.ScheduledAt)
	assert.False(t, execution.Due(time.Now()))
	assert.True(t, execution.Due(scheduledAt.Add(time.Second)))
}

func TestTrigger_FireConditionOnEntityFields(t *testing.T) {
	ctx := context.Background()
	p := testPersistence(t)
	workflow := saveWorkflow(t, p, func(w *models.Workflow) {
		w.Trigger.Conditions = []models.Condition{
			{Field: "entity.stage", Operator: models.OpEqual, Value: "offer"},
		}
	})

	store := entity.NewMemoryStore()
	store.Put(models.EntityTypeCandidate, "cand-1", map[string]any{"stage": "offer"})
	store.Put(models.EntityTypeCandidate, "cand-2", map[string]any{"stage": "screening"})

	trigger := services.NewTrigger(p, nil, testLogger())
	trigger.SetEntityStore(store)

	result, err := trigger.Fire(ctx, services.TriggerRequest{
		WorkflowID: workflow.ID,
		EntityType: models.EntityTypeCandidate,
		EntityID:   "cand-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)

	result, err = trigger.Fire(ctx, services.TriggerRequest{
		WorkflowID: workflow.ID,
		EntityType: models.EntityTypeCandidate,
		EntityID:   "cand-2",
	})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, "trigger conditions not met", result.Reason)
}
