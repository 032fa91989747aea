package updatestatus

import (
	"github.com/trmhq/flowline/pkg/entity"
	"github.com/trmhq/flowline/pkg/models"
	"github.com/trmhq/flowline/pkg/protocol"
)

// Factory creates update_status actions bound to an entity store.
type Factory struct {
	store entity.Store
}

func NewFactory(store entity.Store) *Factory {
	return &Factory{store: store}
}

func (f *Factory) Create(config map[string]any) (protocol.Handler, error) {
	return NewAction(config, f.store)
}

func (f *Factory) ID() string {
	return string(models.ActionTypeUpdateStatus)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{
				"type":        "string",
				"description": "Target status for the entity the execution was triggered by. Supports templating.",
				"examples":    []string{"contacted", "screening", "{{ .input.next_status }}"},
			},
			"notes": map[string]any{
				"type":        "string",
				"description": "Optional notes recorded with the status change. Supports templating.",
			},
		},
		"required":             []string{"status"},
		"additionalProperties": false,
	}
}
