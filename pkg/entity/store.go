// Package entity gives action handlers access to the records workflows act
// on: candidates, jobs, companies and referrals.
package entity

import (
	"context"
	"errors"

	"github.com/trmhq/flowline/pkg/models"
)

var ErrEntityNotFound = errors.New("entity not found")

func IsEntityNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// Store reads and mutates entity records.
type Store interface {
	// Get returns the entity document or ErrEntityNotFound.
	Get(ctx context.Context, entityType models.EntityType, id string) (map[string]any, error)

	// UpdateStatus moves the entity to a new status, optionally with notes.
	UpdateStatus(ctx context.Context, entityType models.EntityType, id, status, notes string) error
}
