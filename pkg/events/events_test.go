package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trmhq/flowline/pkg/events"
	"github.com/trmhq/flowline/pkg/models"
)

func TestEventTypes(t *testing.T) {
	assert.Equal(t, events.ExecutionTriggeredEvent, events.ExecutionTriggered{}.GetType())
	assert.Equal(t, events.ExecutionStartedEvent, events.ExecutionStarted{}.GetType())
	assert.Equal(t, events.ExecutionDelayedEvent, events.ExecutionDelayed{}.GetType())
	assert.Equal(t, events.ExecutionRetryingEvent, events.ExecutionRetrying{}.GetType())
	assert.Equal(t, events.ExecutionCompletedEvent, events.ExecutionCompleted{}.GetType())
	assert.Equal(t, events.ExecutionFailedEvent, events.ExecutionFailed{}.GetType())
	assert.Equal(t, events.ExecutionCancelledEvent, events.ExecutionCancelled{}.GetType())
}

func TestExecutionTriggered_JSON(t *testing.T) {
	event := events.ExecutionTriggered{
		BaseEvent: events.BaseEvent{
			ID:          "evt-1",
			Type:        events.ExecutionTriggeredEvent,
			Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			WorkflowID:  "wf-1",
			ExecutionID: "exec-1",
		},
		TriggerType: models.TriggerTypeEntityCreated,
		EntityType:  models.EntityTypeCandidate,
		EntityID:    "cand-1",
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded events.ExecutionTriggered

	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, event.ExecutionID, decoded.ExecutionID)
	assert.Equal(t, event.TriggerType, decoded.TriggerType)
}
