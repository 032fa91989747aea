package cmd

import (
	"log/slog"

	"github.com/trmhq/flowline/pkg/actions/email"
	"github.com/trmhq/flowline/pkg/actions/notification"
	"github.com/trmhq/flowline/pkg/actions/updatestatus"
	"github.com/trmhq/flowline/pkg/actions/webhook"
	"github.com/trmhq/flowline/pkg/actions/whatsapp"
	"github.com/trmhq/flowline/pkg/entity"
	"github.com/trmhq/flowline/pkg/registry"
)

// NewEntityStore connects the entity store to the platform API when a
// base URL is configured; otherwise actions mutate an in-memory store.
func NewEntityStore(baseURL, apiKey string) entity.Store {
	if baseURL == "" {
		return entity.NewMemoryStore()
	}

	return entity.NewHTTPStore(baseURL, apiKey)
}

// NewRegistry builds the action handler registry with the native
// handler set. Messaging handlers default to log-backed senders;
// production deployments swap those for real providers.
func NewRegistry(logger *slog.Logger, store entity.Store) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(email.NewFactory(email.LogSender{Logger: logger}))
	reg.Register(whatsapp.NewFactory(whatsapp.LogSender{Logger: logger}))
	reg.Register(notification.NewFactory(notification.LogPublisher{Logger: logger}))
	reg.Register(webhook.NewFactory())
	reg.Register(updatestatus.NewFactory(store))

	return reg
}
