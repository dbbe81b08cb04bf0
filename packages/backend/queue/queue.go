// Package queue hands export jobs from the API to the worker over a Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"slidecast/packages/backend/slide"
)

// DefaultQueueName is the Redis list export jobs are pushed onto.
const DefaultQueueName = "slidecast:exports"

// ExportJob asks the worker to export one deck.
type ExportJob struct {
	ExportID   string     `json:"exportId"`
	Deck       slide.Deck `json:"deck"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
}

// RedisQueue pushes and pops export jobs.
type RedisQueue struct {
	rdb  *redis.Client
	name string
}

// NewRedisQueue creates a queue on the list name.
func NewRedisQueue(rdb *redis.Client, name string) *RedisQueue {
	if name == "" {
		name = DefaultQueueName
	}
	return &RedisQueue{rdb: rdb, name: name}
}

// Enqueue pushes a job.
func (q *RedisQueue) Enqueue(ctx context.Context, job ExportJob) error {
	if job.ExportID == "" {
		return errors.New("export job missing id")
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal export job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("enqueue export: %w", err)
	}
	return nil
}

// Pop waits up to timeout for a job. It returns nil when none arrived.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*ExportJob, error) {
	result, err := q.rdb.BRPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue export: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply: %v", result)
	}

	var job ExportJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("decode export job: %w", err)
	}
	if job.ExportID == "" {
		return nil, errors.New("export job missing id")
	}
	return &job, nil
}

// Len reports how many jobs are waiting.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}
