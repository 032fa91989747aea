package entity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trmhq/flowline/pkg/entity"
	"github.com/trmhq/flowline/pkg/models"
)

func TestMemoryStore_GetAndUpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()

	store.Put(models.EntityTypeCandidate, "cand-1", map[string]any{
		"name":   "Alice",
		"status": "new",
	})

	doc, err := store.Get(ctx, models.EntityTypeCandidate, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "new", doc["status"])

	err = store.UpdateStatus(ctx, models.EntityTypeCandidate, "cand-1", "screening", "moved by workflow")
	require.NoError(t, err)

	doc, err = store.Get(ctx, models.EntityTypeCandidate, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, "screening", doc["status"])
	assert.Equal(t, "moved by workflow", doc["status_notes"])
}

func TestMemoryStore_Missing(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()

	_, err := store.Get(ctx, models.EntityTypeJob, "missing")
	assert.True(t, entity.IsEntityNotFound(err))

	err = store.UpdateStatus(ctx, models.EntityTypeJob, "missing", "open", "")
	assert.True(t, entity.IsEntityNotFound(err))
}

func TestHTTPStore_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/referrals/ref-1", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ref-1","status":"pending"}`))
	}))
	defer server.Close()

	store := entity.NewHTTPStore(server.URL, "secret")

	doc, err := store.Get(context.Background(), models.EntityTypeReferral, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", doc["status"])
}

func TestHTTPStore_UpdateStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/companies/co-1/status", r.URL.Path)

		var payload map[string]any

		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "verified", payload["status"])
		assert.Equal(t, "checked", payload["notes"])

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	store := entity.NewHTTPStore(server.URL, "secret")

	err := store.UpdateStatus(context.Background(), models.EntityTypeCompany, "co-1", "verified", "checked")
	require.NoError(t, err)
}

func TestHTTPStore_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store := entity.NewHTTPStore(server.URL, "secret")

	_, err := store.Get(context.Background(), models.EntityTypeJob, "nope")
	assert.True(t, entity.IsEntityNotFound(err))
}

func TestHTTPStore_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := entity.NewHTTPStore(server.URL, "secret")

	err := store.UpdateStatus(context.Background(), models.EntityTypeJob, "job-1", "open", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
