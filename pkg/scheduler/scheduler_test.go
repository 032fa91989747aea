package scheduler_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/persistence"
	"github.com/trmhq/flowline/pkg/persistence/file"
	"github.com/trmhq/flowline/pkg/queue"
	"github.com/trmhq/flowline/pkg/scheduler"
	"github.com/trmhq/flowline/pkg/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func saveWorkflow(t *testing.T, p persistence.Persistence, mutate func(*models.Workflow)) *models.Workflow {
	t.Helper()

	wf := &models.Workflow{
		ID:     "wf-sched",
		Name:   "Scheduled outreach",
		Status: models.WorkflowStatusActive,
		Trigger: models.TriggerSpec{
			Type:       models.TriggerTypeManual,
			EntityType: models.EntityTypeCandidate,
		},
		Actions: []models.ActionSpec{
			{Type: models.ActionTypeSendEmail, Config: map[string]any{}},
		},
	}

	if mutate != nil {
		mutate(wf)
	}

	require.NoError(t, p.WorkflowRepository().Save(context.Background(), wf))

	return wf
}

func createExecution(t *testing.T, p persistence.Persistence, wf *models.Workflow) *models.Execution {
	t.Helper()

	execution, err := models.NewExecution(wf, models.EntityTypeCandidate, "cand-1", nil, "test")
	require.NoError(t, err)
	require.NoError(t, p.ExecutionRepository().Create(context.Background(), execution))

	return execution
}

func TestDispatcher_DispatchDue(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	q := queue.NewMemoryQueue(16)
	wf := saveWorkflow(t, p, nil)

	ready := createExecution(t, p, wf)

	// A future-delayed execution must stay put
	delayed := createExecution(t, p, wf)
	claimed, err := p.ExecutionRepository().Claim(ctx, delayed.ID, models.ExecutionPending, "w1", time.Now())
	require.NoError(t, err)
	claimed.Status = models.ExecutionDelayed
	future := time.Now().Add(time.Hour)
	claimed.NextAttemptAt = &future
	require.NoError(t, p.ExecutionRepository().Update(ctx, claimed, models.ExecutionRunning))

	d := scheduler.NewDispatcher(p, q, "w1", testLogger())
	require.NoError(t, d.DispatchDue(ctx, time.Now().UTC()))

	popCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	id, err := q.Pop(popCtx)
	require.NoError(t, err)
	assert.Equal(t, ready.ID, id)

	// The ready execution is now claimed into RUNNING
	loaded, err := p.ExecutionRepository().GetByID(ctx, ready.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionRunning, loaded.Status)
	assert.Equal(t, "w1", loaded.ClaimedBy)

	// Nothing else was queued
	shortCtx, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()

	_, err = q.Pop(shortCtx)
	require.Error(t, err)
}

func TestDispatcher_SecondPassSkipsClaimed(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	q := queue.NewMemoryQueue(16)
	wf := saveWorkflow(t, p, nil)
	createExecution(t, p, wf)

	d := scheduler.NewDispatcher(p, q, "w1", testLogger())
	require.NoError(t, d.DispatchDue(ctx, time.Now().UTC()))
	require.NoError(t, d.DispatchDue(ctx, time.Now().UTC()))

	popCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	_, err := q.Pop(popCtx)
	require.NoError(t, err)

	shortCtx, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()

	_, err = q.Pop(shortCtx)
	require.Error(t, err, "execution must be dispatched once")
}

func TestStaleSweep_RequeuesSilentWorker(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	wf := saveWorkflow(t, p, nil)
	execution := createExecution(t, p, wf)

	_, err := p.ExecutionRepository().Claim(ctx, execution.ID, models.ExecutionPending, "dead-worker", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	sweep := scheduler.NewStaleSweep(p, time.Minute, 5*time.Minute, testLogger())
	require.NoError(t, sweep.Sweep(ctx, time.Now().UTC()))

	loaded, err := p.ExecutionRepository().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionRetrying, loaded.Status)
	require.NotNil(t, loaded.NextAttemptAt)

	found := false

	for _, entry := range loaded.Logs {
		if entry.Level == models.LogWarn && entry.Source == "scheduler" {
			found = true
		}
	}

	assert.True(t, found, "requeue must leave a warning log entry")
}

func TestStaleSweep_LeavesFreshRunningAlone(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	wf := saveWorkflow(t, p, nil)
	execution := createExecution(t, p, wf)

	_, err := p.ExecutionRepository().Claim(ctx, execution.ID, models.ExecutionPending, "live-worker", time.Now())
	require.NoError(t, err)

	sweep := scheduler.NewStaleSweep(p, time.Minute, 5*time.Minute, testLogger())
	require.NoError(t, sweep.Sweep(ctx, time.Now().UTC()))

	loaded, err := p.ExecutionRepository().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionRunning, loaded.Status)
}

func TestCronFirer_FiresWhenDue(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	wf := saveWorkflow(t, p, func(wf *models.Workflow) {
		wf.Trigger = models.TriggerSpec{
			Type:           models.TriggerTypeSchedule,
			EntityType:     models.EntityTypeCandidate,
			CronExpression: "*/5 * * * *",
		}
	})

	trigger := services.NewTrigger(p, nil, testLogger())
	firer := scheduler.NewCronFirer(p, trigger, time.Minute, testLogger())

	now := time.Now().UTC()

	// First pass only records the upcoming due time
	require.NoError(t, firer.FireDue(ctx, now))

	executions, _, err := p.ExecutionRepository().List(ctx, persistence.ListExecutionsOptions{WorkflowID: wf.ID})
	require.NoError(t, err)
	assert.Empty(t, executions)

	// A pass after the due instant fires exactly once
	require.NoError(t, firer.FireDue(ctx, now.Add(10*time.Minute)))
	require.NoError(t, firer.FireDue(ctx, now.Add(10*time.Minute)))

	executions, total, err := p.ExecutionRepository().List(ctx, persistence.ListExecutionsOptions{WorkflowID: wf.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, models.ExecutionPending, executions[0].Status)
	assert.Equal(t, "cron", executions[0].TriggeredBy)
	assert.NotEmpty(t, executions[0].DedupKey)
}

func TestCronFirer_SkipsPausedWorkflow(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	wf := saveWorkflow(t, p, func(wf *models.Workflow) {
		wf.Status = models.WorkflowStatusPaused
		wf.Trigger = models.TriggerSpec{
			Type:           models.TriggerTypeSchedule,
			EntityType:     models.EntityTypeCandidate,
			CronExpression: "*/5 * * * *",
		}
	})

	trigger := services.NewTrigger(p, nil, testLogger())
	firer := scheduler.NewCronFirer(p, trigger, time.Minute, testLogger())

	now := time.Now().UTC()
	require.NoError(t, firer.FireDue(ctx, now))
	require.NoError(t, firer.FireDue(ctx, now.Add(10*time.Minute)))

	executions, _, err := p.ExecutionRepository().List(ctx, persistence.ListExecutionsOptions{WorkflowID: wf.ID})
	require.NoError(t, err)
	assert.Empty(t, executions)
}

type recordingRunner struct {
	ran chan string
}

func (r *recordingRunner) Run(_ context.Context, executionID string) (*models.Execution, error) {
	r.ran <- executionID

	return &models.Execution{ID: executionID, Status: models.ExecutionCompleted}, nil
}

func TestPool_ConsumesQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewMemoryQueue(16)
	runner := &recordingRunner{ran: make(chan string, 4)}
	pool := scheduler.NewPool(q, runner, 2, testLogger())

	done := make(chan struct{})

	go func() {
		_ = pool.Run(ctx)
		close(done)
	}()

	require.NoError(t, q.Push(ctx, "exec-1"))
	require.NoError(t, q.Push(ctx, "exec-2"))

	got := map[string]bool{}
	for range 2 {
		select {
		case id := <-runner.ran:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("pool did not consume queued executions")
		}
	}

	assert.True(t, got["exec-1"])
	assert.True(t, got["exec-2"])

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop on context cancel")
	}
}
