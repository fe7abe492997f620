package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const ReevaluationQueue = "workflow:queue:reevaluate"

type RedisQueue struct {
	client      *redis.Client
	queueName   string
	pollTimeout time.Duration
}

// NewRedisQueue returns the re-evaluation queue. Pop blocks for at most
// pollTimeout so that workers notice shutdown.
func NewRedisQueue(client *redis.Client, pollTimeout time.Duration) *RedisQueue {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &RedisQueue{
		client:      client,
		queueName:   ReevaluationQueue,
		pollTimeout: pollTimeout,
	}
}

// Push adds a submission ID to the end of the list
func (q *RedisQueue) Push(ctx context.Context, submissionID string) error {
	return q.client.RPush(ctx, q.queueName, submissionID).Err()
}

// Pop waits for a submission ID and removes it from the front of the list.
// It returns "" and no error when nothing arrived within the poll timeout.
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	result, err := q.client.BLPop(ctx, q.pollTimeout, q.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// BLPop returns a slice: [QueueName, Element]
	return result[1], nil
}
