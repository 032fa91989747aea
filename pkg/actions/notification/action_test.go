package notification_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trmhq/flowline/pkg/actions/notification"
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/protocol"
)

type capturePublisher struct {
	published []notification.Notification
}

func (p *capturePublisher) Publish(_ context.Context, n notification.Notification) error {
	p.published = append(p.published, n)

	return nil
}

func TestNewAction_Validation(t *testing.T) {
	_, err := notification.NewAction(map[string]any{"title": "hi"}, &capturePublisher{})
	assert.ErrorIs(t, err, notification.ErrNotificationMessageInvalid)
}

func TestNewAction_DefaultChannel(t *testing.T) {
	action, err := notification.NewAction(map[string]any{"message": "hello"}, &capturePublisher{})
	require.NoError(t, err)
	assert.Equal(t, "in_app", action.Channel)
}

func TestAction_Execute(t *testing.T) {
	publisher := &capturePublisher{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	action, err := notification.NewAction(map[string]any{
		"user_id": "{{ .input.recruiter_id }}",
		"channel": "slack",
		"title":   "New candidate",
		"message": "{{ .input.name }} applied to {{ .input.job }}",
	}, publisher)
	require.NoError(t, err)

	req := protocol.HandlerRequest{
		Execution: &models.Execution{
			EntityType: models.EntityTypeCandidate,
			EntityID:   "cand-1",
			Input: map[string]any{
				"recruiter_id": "user-42",
				"name":         "Alice",
				"job":          "Backend Engineer",
			},
		},
	}

	result, err := action.Execute(context.Background(), req, logger)
	require.NoError(t, err)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "user-42", publisher.published[0].UserID)
	assert.Equal(t, "slack", publisher.published[0].Channel)
	assert.Equal(t, "Alice applied to Backend Engineer", publisher.published[0].Message)
	assert.Equal(t, "slack", result.Output["channel"])
}
