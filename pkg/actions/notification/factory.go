package notification

import (
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/protocol"
)

// Factory creates notification actions bound to a publisher.
type Factory struct {
	publisher Publisher
}

func NewFactory(publisher Publisher) *Factory {
	return &Factory{publisher: publisher}
}

func (f *Factory) Create(config map[string]any) (protocol.Handler, error) {
	return NewAction(config, f.publisher)
}

func (f *Factory) ID() string {
	return string(models.ActionTypeSendNotification)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{
				"type":        "string",
				"description": "Target user for the notification. Supports templating.",
			},
			"channel": map[string]any{
				"type":        "string",
				"description": "Delivery channel",
				"default":     "in_app",
				"enum":        []string{"in_app", "push", "slack"},
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Notification title. Supports templating.",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Notification body. Supports templating.",
			},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}
