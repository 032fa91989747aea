// Package queue provides the dispatch queue that hands claimed executions to workers.
package queue

import "context"

// Queue carries execution IDs from the scheduler to the worker pool.
type Queue interface {
	// Push enqueues an execution ID for processing.
	Push(ctx context.Context, executionID string) error

	// Pop blocks until an execution ID is available or the context is done.
	Pop(ctx context.Context) (string, error)

	// Close releases the underlying resources.
	Close() error
}
