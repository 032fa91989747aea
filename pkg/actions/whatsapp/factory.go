package whatsapp

import (
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/protocol"
)

// Factory creates WhatsApp actions bound to a sender.
type Factory struct {
	sender Sender
}

func NewFactory(sender Sender) *Factory {
	return &Factory{sender: sender}
}

func (f *Factory) Create(config map[string]any) (protocol.Handler, error) {
	return NewAction(config, f.sender)
}

func (f *Factory) ID() string {
	return string(models.ActionTypeSendWhatsApp)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"phone": map[string]any{
				"type":        "string",
				"description": "Recipient phone number in E.164 format. Supports templating.",
				"examples":    []string{"{{ .input.phone }}", "+5511999999999"},
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Message text. Supports templating.",
			},
		},
		"required":             []string{"phone", "message"},
		"additionalProperties": false,
	}
}
