package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned when pushing to or popping from a closed queue.
var ErrQueueClosed = errors.New("queue is closed")

// MemoryQueue is an in-process dispatch queue for development and tests.
type MemoryQueue struct {
	mu     sync.Mutex
	items  chan string
	closed bool
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{
		items: make(chan string, size),
	}
}

func (q *MemoryQueue) Push(ctx context.Context, executionID string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()

		return ErrQueueClosed
	}
	q.mu.Unlock()

	select {
	case q.items <- executionID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Pop(ctx context.Context) (string, error) {
	select {
	case id, ok := <-q.items:
		if !ok {
			return "", ErrQueueClosed
		}

		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.items)
	}

	return nil
}
