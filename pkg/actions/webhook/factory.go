package webhook

import (
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/protocol"
)

// Factory creates webhook actions.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(config map[string]any) (protocol.Handler, error) {
	return NewAction(config)
}

func (f *Factory) ID() string {
	return string(models.ActionTypeWebhook)
}

// Schema returns the JSON schema for configuring this action.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to call. Supports templating with execution data.",
				"examples": []string{
					"https://hooks.example.com/new-candidate",
					"https://api.example.com/referrals/{{ .entity.id }}/notify",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     "POST",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body content. Supports templating for dynamic JSON.",
				"examples": []string{
					`{"candidate": "{{ .input.name }}", "at": "{{ now }}"}`,
				},
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
