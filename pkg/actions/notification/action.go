// Package notification provides the send_notification action for workflow steps.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/trmhq/flowline/pkg/protocol"
	"github.com/trmhq/flowline/pkg/template"
)

// ErrNotificationMessageInvalid is returned when the message is missing or invalid.
var ErrNotificationMessageInvalid = errors.New("invalid notification message")

// Notification is a rendered in-app notification ready for delivery.
type Notification struct {
	UserID  string
	Channel string
	Title   string
	Message string
}

// Publisher delivers notifications to the platform's notification feed.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// LogPublisher writes the notification to the log instead of delivering it.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, n Notification) error {
	p.Logger.InfoContext(ctx, "Notification published",
		"user_id", n.UserID,
		"channel", n.Channel,
		"title", n.Title,
	)

	return nil
}

// Action renders and publishes a notification.
type Action struct {
	UserID    string
	Channel   string
	Title     string
	Message   string
	publisher Publisher
}

func NewAction(config map[string]any, publisher Publisher) (*Action, error) {
	message, ok := config["message"].(string)
	if !ok || message == "" {
		return nil, fmt.Errorf("missing or invalid 'message' in configuration: %w", ErrNotificationMessageInvalid)
	}

	userID, _ := config["user_id"].(string)
	title, _ := config["title"].(string)

	channel, _ := config["channel"].(string)
	if channel == "" {
		channel = "in_app"
	}

	return &Action{
		UserID:    userID,
		Channel:   channel,
		Title:     title,
		Message:   message,
		publisher: publisher,
	}, nil
}

func (a *Action) Execute(ctx context.Context, req protocol.HandlerRequest, logger *slog.Logger) (*protocol.HandlerResult, error) {
	logger = logger.With("module", "notification_action")

	userID, err := template.RenderString(a.UserID, req.Execution, req.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to render 'user_id' template: %w", err)
	}

	title, err := template.RenderString(a.Title, req.Execution, req.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to render 'title' template: %w", err)
	}

	message, err := template.RenderString(a.Message, req.Execution, req.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to render 'message' template: %w", err)
	}

	n := Notification{
		UserID:  userID,
		Channel: a.Channel,
		Title:   title,
		Message: message,
	}

	if err := a.publisher.Publish(ctx, n); err != nil {
		return nil, fmt.Errorf("notification delivery failed: %w", err)
	}

	logger.InfoContext(ctx, "Notification action completed", "channel", a.Channel)

	return &protocol.HandlerResult{
		Output: map[string]any{
			"channel": a.Channel,
			"user_id": userID,
		},
	}, nil
}
