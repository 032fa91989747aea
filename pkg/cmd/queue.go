package cmd

import (
	"context"
	"fmt"

	"github.com/trmhq/flowline/pkg/queue"
)

const memoryQueueSize = 1024

// NewQueue creates the dispatch queue. A non-empty redis URL selects
// the shared Redis list; otherwise the queue is process-local.
func NewQueue(ctx context.Context, redisURL string) queue.Queue {
	if redisURL == "" {
		return queue.NewMemoryQueue(memoryQueueSize)
	}

	q, err := queue.NewRedisQueue(ctx, redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to connect to Redis queue: %w", err))
	}

	return q
}
