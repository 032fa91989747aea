// Package cmd provides common initialization for the command-line
// entrypoints.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/trmhq/flowline/pkg/persistence"
	"github.com/trmhq/flowline/pkg/persistence/file"
	"github.com/trmhq/flowline/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL
// scheme. postgres:// URLs get the SQL store, anything else is treated
// as a directory path for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return p
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}
