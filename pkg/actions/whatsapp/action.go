// Package whatsapp provides the send_whatsapp action for workflow steps.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/trmhq/flowline/pkg/protocol"
	"github.com/trmhq/flowline/pkg/template"
)

var (
	// ErrWhatsAppPhoneInvalid is returned when the phone number is missing or invalid.
	ErrWhatsAppPhoneInvalid = errors.New("invalid whatsapp phone number")
	// ErrWhatsAppMessageInvalid is returned when the message is missing or invalid.
	ErrWhatsAppMessageInvalid = errors.New("invalid whatsapp message")
)

// Message is a rendered WhatsApp message ready for delivery.
type Message struct {
	Phone string
	Text  string
}

// Sender delivers rendered messages through a WhatsApp provider.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes the message to the log instead of delivering it.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	s.Logger.InfoContext(ctx, "WhatsApp message sent",
		"phone", msg.Phone,
		"text_length", len(msg.Text),
	)

	return nil
}

// Action renders and sends a WhatsApp message through the configured sender.
type Action struct {
	Phone   string
	Message string
	sender  Sender
}

func NewAction(config map[string]any, sender Sender) (*Action, error) {
	phone, ok := config["phone"].(string)
	if !ok || phone == "" {
		return nil, fmt.Errorf("missing or invalid 'phone' in configuration: %w", ErrWhatsAppPhoneInvalid)
	}

	message, ok := config["message"].(string)
	if !ok || message == "" {
		return nil, fmt.Errorf("missing or invalid 'message' in configuration: %w", ErrWhatsAppMessageInvalid)
	}

	return &Action{
		Phone:   phone,
		Message: message,
		sender:  sender,
	}, nil
}

func (a *Action) Execute(ctx context.Context, req protocol.HandlerRequest, logger *slog.Logger) (*protocol.HandlerResult, error) {
	logger = logger.With("module", "whatsapp_action")

	phone, err := template.RenderString(a.Phone, req.Execution, req.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to render 'phone' template: %w", err)
	}

	text, err := template.RenderString(a.Message, req.Execution, req.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to render 'message' template: %w", err)
	}

	if err := a.sender.Send(ctx, Message{Phone: phone, Text: text}); err != nil {
		return nil, fmt.Errorf("whatsapp delivery failed: %w", err)
	}

	logger.InfoContext(ctx, "WhatsApp action completed", "phone", phone)

	return &protocol.HandlerResult{
		Output: map[string]any{
			"phone": phone,
		},
	}, nil
}
