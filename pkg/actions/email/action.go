// Package email provides the send_email action for workflow steps.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/trmhq/flowline/pkg/protocol"
	"github.com/trmhq/flowline/pkg/template"
)

var (
	// ErrEmailToInvalid is returned when the recipient is missing or invalid.
	ErrEmailToInvalid = errors.New("invalid email recipient")
	// ErrEmailSubjectInvalid is returned when the subject is missing or invalid.
	ErrEmailSubjectInvalid = errors.New("invalid email subject")
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers rendered emails. Production deployments plug in a real
// provider; the default LogSender just records the send.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes the message to the log instead of delivering it.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	s.Logger.InfoContext(ctx, "Email sent",
		"to", msg.To,
		"subject", msg.Subject,
		"body_length", len(msg.Body),
	)

	return nil
}

// Action renders and sends an email through the configured sender.
type Action struct {
	To      string
	Subject string
	Body    string
	sender  Sender
}

func NewAction(config map[string]any, sender Sender) (*Action, error) {
	to, ok := config["to"].(string)
	if !ok || to == "" {
		return nil, fmt.Errorf("missing or invalid 'to' in configuration: %w", ErrEmailToInvalid)
	}

	subject, ok := config["subject"].(string)
	if !ok || subject == "" {
		return nil, fmt.Errorf("missing or invalid 'subject' in configuration: %w", ErrEmailSubjectInvalid)
	}

	body, _ := config["body"].(string)

	return &Action{
		To:      to,
		Subject: subject,
		Body:    body,
		sender:  sender,
	}, nil
}

func (a *Action) Execute(ctx context.Context, req protocol.HandlerRequest, logger *slog.Logger) (*protocol.HandlerResult, error) {
	logger = logger.With("module", "email_action")

	to, err := template.RenderString(a.To, req.Execution, req.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to render 'to' template: %w", err)
	}

	subject, err := template.RenderString(a.Subject, req.Execution, req.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to render 'subject' template: %w", err)
	}

	body, err := template.RenderString(a.Body, req.Execution, req.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to render 'body' template: %w", err)
	}

	msg := Message{To: to, Subject: subject, Body: body}

	if err := a.sender.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("email delivery failed: %w", err)
	}

	logger.InfoContext(ctx, "Email action completed", "to", to)

	return &protocol.HandlerResult{
		Output: map[string]any{
			"to":      to,
			"subject": subject,
		},
	}, nil
}
