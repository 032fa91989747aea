package whatsapp_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trmhq/flowline/pkg/actions/whatsapp"
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/protocol"
)

type captureSender struct {
	messages []whatsapp.Message
}

func (s *captureSender) Send(_ context.Context, msg whatsapp.Message) error {
	s.messages = append(s.messages, msg)

	return nil
}

func TestNewAction_Validation(t *testing.T) {
	sender := &captureSender{}

	_, err := whatsapp.NewAction(map[string]any{"message": "hi"}, sender)
	assert.ErrorIs(t, err, whatsapp.ErrWhatsAppPhoneInvalid)

	_, err = whatsapp.NewAction(map[string]any{"phone": "+551199"}, sender)
	assert.ErrorIs(t, err, whatsapp.ErrWhatsAppMessageInvalid)
}

func TestAction_Execute(t *testing.T) {
	sender := &captureSender{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	action, err := whatsapp.NewAction(map[string]any{
		"phone":   "{{ .input.phone }}",
		"message": "Hi {{ .input.name }}, your referral moved forward.",
	}, sender)
	require.NoError(t, err)

	req := protocol.HandlerRequest{
		Execution: &models.Execution{
			EntityType: models.EntityTypeReferral,
			EntityID:   "ref-1",
			Input:      map[string]any{"phone": "+5511999999999", "name": "Bob"},
		},
	}

	result, err := action.Execute(context.Background(), req, logger)
	require.NoError(t, err)

	require.Len(t, sender.messages, 1)
	assert.Equal(t, "+5511999999999", sender.messages[0].Phone)
	assert.Contains(t, sender.messages[0].Text, "Bob")
	assert.Equal(t, "+5511999999999", result.Output["phone"])
}
