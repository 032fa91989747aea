package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkflow() *Workflow {
	return &Workflow{
		ID:     "wf-1",
		Name:   "Candidate follow-up",
		Status: WorkflowStatusActive,
		Trigger: TriggerSpec{
			Type:       TriggerTypeManual,
			EntityType: EntityTypeCandidate,
		},
		Actions: []ActionSpec{
			{Type: ActionTypeSendEmail, Config: map[string]any{"subject": "hi"}},
			{Type: ActionTypeUpdateStatus, Config: map[string]any{"status": "contacted"}},
		},
	}
}

func TestExecutionStatus_Terminal(t *testing.T) {
	assert.True(t, ExecutionCompleted.Terminal())
	assert.True(t, ExecutionFailed.Terminal())
	assert.True(t, ExecutionCancelled.Terminal())

	assert.False(t, ExecutionPending.Terminal())
	assert.False(t, ExecutionRunning.Terminal())
	assert.False(t, ExecutionRetrying.Terminal())
	assert.False(t, ExecutionDelayed.Terminal())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    ExecutionStatus
		to      ExecutionStatus
		allowed bool
	}{
		{"acquire", ExecutionPending, ExecutionRunning, true},
		{"delay", ExecutionRunning, ExecutionDelayed, true},
		{"delay due", ExecutionDelayed, ExecutionRunning, true},
		{"retry scheduled", ExecutionRunning, ExecutionRetrying, true},
		{"retry due", ExecutionRetrying, ExecutionRunning, true},
		{"complete", ExecutionRunning, ExecutionCompleted, true},
		{"fail", ExecutionRunning, ExecutionFailed, true},
		{"cancel pending", ExecutionPending, ExecutionCancelled, true},
		{"cancel running", ExecutionRunning, ExecutionCancelled, true},
		{"cancel retrying", ExecutionRetrying, ExecutionCancelled, true},
		{"cancel delayed", ExecutionDelayed, ExecutionCancelled, true},
		{"operator retry", ExecutionFailed, ExecutionPending, true},

		{"revive completed", ExecutionCompleted, ExecutionRunning, false},
		{"revive cancelled", ExecutionCancelled, ExecutionRunning, false},
		{"cancel completed", ExecutionCompleted, ExecutionCancelled, false},
		{"skip acquire", ExecutionPending, ExecutionCompleted, false},
		{"delayed to retrying", ExecutionDelayed, ExecutionRetrying, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNewExecution(t *testing.T) {
	workflow := testWorkflow()

	execution, err := NewExecution(workflow, EntityTypeCandidate, "cand-9", map[string]any{"source": "referral"}, "user-1")
	require.NoError(t, err)

	assert.NotEmpty(t, execution.ID)
	assert.Equal(t, "wf-1", execution.WorkflowID)
	assert.Equal(t, ExecutionPending, execution.Status)
	assert.Equal(t, 0, execution.CurrentAction)
	require.Len(t, execution.ActionResults, 2)

	for _, result := range execution.ActionResults {
		assert.Equal(t, ActionPending, result.Status)
		assert.Zero(t, result.Attempt)
	}
}

func TestExecution_Due(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		exec Execution
		due  bool
	}{
		{"pending immediate", Execution{Status: ExecutionPending}, true},
		{"pending scheduled past", Execution{Status: ExecutionPending, ScheduledAt: &past}, true},
		{"pending scheduled future", Execution{Status: ExecutionPending, ScheduledAt: &future}, false},
		{"delayed due", Execution{Status: ExecutionDelayed, NextAttemptAt: &past}, true},
		{"delayed not due", Execution{Status: ExecutionDelayed, NextAttemptAt: &future}, false},
		{"retrying due", Execution{Status: ExecutionRetrying, NextAttemptAt: &past}, true},
		{"retrying not due", Execution{Status: ExecutionRetrying, NextAttemptAt: &future}, false},
		{"running never", Execution{Status: ExecutionRunning}, false},
		{"completed never", Execution{Status: ExecutionCompleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.due, tt.exec.Due(now))
		})
	}
}

func TestExecution_ResetForRetry(t *testing.T) {
	workflow := testWorkflow()

	execution, err := NewExecution(workflow, EntityTypeCandidate, "cand-9", nil, "user-1")
	require.NoError(t, err)

	finished := time.Now().UTC()
	execution.Status = ExecutionFailed
	execution.CurrentAction = 1
	execution.Error = "send_email: provider unavailable"
	execution.FinishedAt = &finished
	execution.ActionResults[0] = ActionResult{Status: ActionFailed, Attempt: 3, Error: "provider unavailable"}
	execution.AppendLog(LogError, "runner", "retries exhausted")

	execution.ResetForRetry()

	assert.Equal(t, ExecutionPending, execution.Status)
	assert.Equal(t, 0, execution.CurrentAction)
	assert.Empty(t, execution.Error)
	assert.Nil(t, execution.FinishedAt)

	for _, result := range execution.ActionResults {
		assert.Equal(t, ActionPending, result.Status)
		assert.Zero(t, result.Attempt)
	}

	// The audit trail survives the restart.
	assert.NotEmpty(t, execution.Logs)
}

func TestExecution_AppendLog_Ordering(t *testing.T) {
	execution := Execution{}

	execution.AppendLog(LogInfo, "runner", "first")
	execution.AppendLog(LogWarn, "runner", "second")
	execution.AppendLog(LogError, "runner", "third")

	require.Len(t, execution.Logs, 3)
	assert.Equal(t, "first", execution.Logs[0].Message)
	assert.Equal(t, "second", execution.Logs[1].Message)
	assert.Equal(t, "third", execution.Logs[2].Message)
}
