package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionType_Internal(t *testing.T) {
	assert.True(t, ActionTypeDelay.Internal())
	assert.True(t, ActionTypeCondition.Internal())

	assert.False(t, ActionTypeSendEmail.Internal())
	assert.False(t, ActionTypeWebhook.Internal())
	assert.False(t, ActionTypeUpdateStatus.Internal())
}

func TestActionSpec_MaxAttempts(t *testing.T) {
	assert.Equal(t, 1, ActionSpec{}.MaxAttempts())
	assert.Equal(t, 1, ActionSpec{Retry: RetryPolicy{MaxAttempts: 0}}.MaxAttempts())
	assert.Equal(t, 3, ActionSpec{Retry: RetryPolicy{MaxAttempts: 3}}.MaxAttempts())
}

func TestActionSpec_Timeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, ActionSpec{}.Timeout())
	assert.Equal(t, 5*time.Second, ActionSpec{TimeoutSeconds: 5}.Timeout())
}

func TestActionSpec_DelaySeconds(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		want    int
		wantErr bool
	}{
		{"float from json", map[string]any{"seconds": 60.0}, 60, false},
		{"int", map[string]any{"seconds": 90}, 90, false},
		{"missing", map[string]any{}, 0, true},
		{"wrong type", map[string]any{"seconds": "60"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := ActionSpec{Type: ActionTypeDelay, Config: tt.config}

			got, err := spec.DelaySeconds()
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActionSpec_ConditionPredicates(t *testing.T) {
	spec := ActionSpec{
		Type: ActionTypeCondition,
		Config: map[string]any{
			"conditions": []any{
				map[string]any{"field": "input.score", "operator": "gt", "value": 3},
			},
		},
	}

	conditions, err := spec.ConditionPredicates()
	require.NoError(t, err)
	require.Len(t, conditions, 1)
	assert.Equal(t, "input.score", conditions[0].Field)

	_, err = ActionSpec{Type: ActionTypeCondition, Config: map[string]any{}}.ConditionPredicates()
	assert.Error(t, err)
}

func TestTriggerSpec_NextRun(t *testing.T) {
	spec := TriggerSpec{
		Type:           TriggerTypeSchedule,
		EntityType:     EntityTypeCandidate,
		CronExpression: "0 9 * * *",
	}

	reference := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	next, err := spec.NextRun(reference)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), next)

	_, err = TriggerSpec{CronExpression: "not a cron"}.NextRun(reference)
	assert.Error(t, err)
}
