package stats_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/persistence/file"
	"github.com/trmhq/flowline/pkg/stats"
)

func TestAggregator_Recompute(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	wf := &models.Workflow{
		ID:     "wf-stats",
		Name:   "Stats workflow",
		Status: models.WorkflowStatusActive,
		Trigger: models.TriggerSpec{
			Type:       models.TriggerTypeManual,
			EntityType: models.EntityTypeCandidate,
		},
		Actions: []models.ActionSpec{
			{Type: models.ActionTypeSendEmail, Config: map[string]any{}},
		},
	}
	require.NoError(t, p.WorkflowRepository().Save(ctx, wf))

	finish := func(status models.ExecutionStatus) {
		execution, err := models.NewExecution(wf, models.EntityTypeCandidate, "cand-1", nil, "test")
		require.NoError(t, err)
		require.NoError(t, p.ExecutionRepository().Create(ctx, execution))

		if status == models.ExecutionPending {
			return
		}

		claimed, err := p.ExecutionRepository().Claim(ctx, execution.ID, models.ExecutionPending, "w1", time.Now())
		require.NoError(t, err)

		claimed.Status = status
		now := time.Now().UTC()
		claimed.FinishedAt = &now
		require.NoError(t, p.ExecutionRepository().Update(ctx, claimed, models.ExecutionRunning))
	}

	finish(models.ExecutionCompleted)
	finish(models.ExecutionCompleted)
	finish(models.ExecutionFailed)
	finish(models.ExecutionPending)

	aggregator := stats.NewAggregator(p, time.Minute, logger)
	require.NoError(t, aggregator.Recompute(ctx, time.Now().UTC()))

	loaded, err := p.WorkflowRepository().GetByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, loaded.Stats.ExecutionsStarted)
	assert.EqualValues(t, 2, loaded.Stats.ExecutionsCompleted)
	assert.EqualValues(t, 1, loaded.Stats.ExecutionsFailed)
	require.NotNil(t, loaded.Stats.RecomputedAt)
}
