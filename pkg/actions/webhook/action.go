// Package webhook provides the outbound HTTP call action for workflow steps.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/trmhq/flowline/pkg/protocol"
	"github.com/trmhq/flowline/pkg/template"
)

const defaultTimeoutSeconds = 30

var (
	// ErrWebhookURLInvalid is returned when the webhook URL is missing or invalid.
	ErrWebhookURLInvalid = errors.New("invalid webhook URL")
	// ErrWebhookStatus is returned when the endpoint answers outside the 2xx range.
	ErrWebhookStatus = errors.New("webhook returned non-success status")
)

// Action delivers a templated HTTP request to an external endpoint.
type Action struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

// NewAction creates a webhook action from configuration.
func NewAction(config map[string]any) (*Action, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("missing or invalid 'url' in configuration: %w", ErrWebhookURLInvalid)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	return &Action{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Body:    body,
		Timeout: defaultTimeoutSeconds * time.Second,
	}, nil
}

// Execute sends the request and returns the response as the action output.
// Retries are the runner's job, so any transport failure or non-2xx answer
// surfaces as an error.
func (a *Action) Execute(ctx context.Context, req protocol.HandlerRequest, logger *slog.Logger) (*protocol.HandlerResult, error) {
	logger = logger.With("module", "webhook_action")
	logger.InfoContext(ctx, "Executing webhook action", "method", a.Method)

	httpReq, err := a.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: a.Timeout}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrWebhookStatus, resp.StatusCode)
	}

	logger.InfoContext(ctx, "Webhook action completed", "status_code", resp.StatusCode)

	return &protocol.HandlerResult{
		Output: map[string]any{
			"status_code": resp.StatusCode,
			"body":        body,
		},
	}, nil
}

func (a *Action) buildRequest(ctx context.Context, req protocol.HandlerRequest) (*http.Request, error) {
	url, err := template.RenderString(a.URL, req.Execution, req.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	var bodyReader io.Reader = strings.NewReader("")

	if a.Body != "" {
		rendered, err := template.RenderWithExecution(a.Body, req.Execution, req.Entity)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}

		var bodyBytes []byte
		if str, ok := rendered.(string); ok {
			bodyBytes = []byte(str)
		} else {
			bodyBytes, err = json.Marshal(rendered)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal body: %w", err)
			}
		}

		bodyReader = strings.NewReader(string(bodyBytes))
	}

	httpReq, err := http.NewRequestWithContext(ctx, a.Method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}

	for key, value := range a.Headers {
		rendered, err := template.RenderString(value, req.Execution, req.Entity)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		httpReq.Header.Set(key, rendered)
	}

	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}
