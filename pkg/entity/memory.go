package entity

import (
	"context"
	"sync"

	"github.com/trmhq/flowline/pkg/models"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[string]map[string]any),
	}
}

func key(entityType models.EntityType, id string) string {
	return string(entityType) + "/" + id
}

// Put stores or replaces an entity document.
func (s *MemoryStore) Put(entityType models.EntityType, id string, doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]any, len(doc))
	for k, v := range doc {
		copied[k] = v
	}

	s.entities[key(entityType, id)] = copied
}

func (s *MemoryStore) Get(_ context.Context, entityType models.EntityType, id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.entities[key(entityType, id)]
	if !ok {
		return nil, ErrEntityNotFound
	}

	copied := make(map[string]any, len(doc))
	for k, v := range doc {
		copied[k] = v
	}

	return copied, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, entityType models.EntityType, id, status, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.entities[key(entityType, id)]
	if !ok {
		return ErrEntityNotFound
	}

	doc["status"] = status
	if notes != "" {
		doc["status_notes"] = notes
	}

	return nil
}
