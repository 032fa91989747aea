package entity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trmhq/flowline/pkg/models"
)

// HTTPStore talks to the platform's REST API. Requests are authenticated
// with the X-API-Key header.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPStore(baseURL, apiKey string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func collection(entityType models.EntityType) string {
	if entityType == models.EntityTypeCompany {
		return "companies"
	}

	return string(entityType) + "s"
}

func (s *HTTPStore) Get(ctx context.Context, entityType models.EntityType, id string) (map[string]any, error) {
	url := fmt.Sprintf("%s/%s/%s", s.baseURL, collection(entityType), id)

	body, err := s.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode entity response: %w", err)
	}

	return doc, nil
}

func (s *HTTPStore) UpdateStatus(ctx context.Context, entityType models.EntityType, id, status, notes string) error {
	url := fmt.Sprintf("%s/%s/%s/status", s.baseURL, collection(entityType), id)

	payload := map[string]any{"status": status}
	if notes != "" {
		payload["notes"] = notes
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = s.do(ctx, http.MethodPatch, url, raw)

	return err
}

func (s *HTTPStore) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-API-Key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("entity request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrEntityNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("entity request returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
