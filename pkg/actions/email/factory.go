package email

import (
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/protocol"
)

// Factory creates email actions bound to a sender.
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
	return string(models.ActionTypeSendEmail)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Recipient address. Supports templating with execution data.",
				"examples":    []string{"{{ .input.email }}", "recruiting@example.com"},
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Email subject. Supports templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Email body. Supports templating.",
			},
		},
		"required":             []string{"to", "subject"},
		"additionalProperties": false,
	}
}
