package updatestatus_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trmhq/flowline/pkg/actions/updatestatus"
	"github.com/trmhq/flowline/pkg/entity"
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/protocol"
)

func TestNewAction_Validation(t *testing.T) {
	_, err := updatestatus.NewAction(map[string]any{"notes": "x"}, entity.NewMemoryStore())
	assert.ErrorIs(t, err, updatestatus.ErrStatusInvalid)
}

func TestAction_Execute(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store := entity.NewMemoryStore()
	store.Put(models.EntityTypeReferral, "ref-1", map[string]any{"status": "pending"})

	action, err := updatestatus.NewAction(map[string]any{
		"status": "contacted",
		"notes":  "reached via {{ .input.channel }}",
	}, store)
	require.NoError(t, err)

	req := protocol.HandlerRequest{
		Execution: &models.Execution{
			EntityType: models.EntityTypeReferral,
			EntityID:   "ref-1",
			Input:      map[string]any{"channel": "email"},
		},
	}

	result, err := action.Execute(ctx, req, logger)
	require.NoError(t, err)
	assert.Equal(t, "contacted", result.Output["status"])

	doc, err := store.Get(ctx, models.EntityTypeReferral, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "contacted", doc["status"])
	assert.Equal(t, "reached via email", doc["status_notes"])
}

func TestAction_ExecuteMissingEntity(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	action, err := updatestatus.NewAction(map[string]any{"status": "open"}, entity.NewMemoryStore())
	require.NoError(t, err)

	req := protocol.HandlerRequest{
		Execution: &models.Execution{
			EntityType: models.EntityTypeJob,
			EntityID:   "job-404",
		},
	}

	_, err = action.Execute(context.Background(), req, logger)
	require.Error(t, err)
	assert.True(t, entity.IsEntityNotFound(err))
}
