package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisQueueKey = "flowline:queue:dispatch"

// RedisQueue is a Redis list-backed dispatch queue shared by all workers.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(ctx context.Context, address string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		PoolSize: 100,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisQueue{client: client}, nil
}

func (q *RedisQueue) Push(ctx context.Context, executionID string) error {
	return q.client.RPush(ctx, redisQueueKey, executionID).Err()
}

func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	// 0 blocks until an item appears or the context is cancelled
	result, err := q.client.BLPop(ctx, 0*time.Second, redisQueueKey).Result()
	if err != nil {
		return "", err
	}

	// BLPop returns [key, element]
	return result[1], nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
