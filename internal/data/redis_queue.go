package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// DefaultQueueKey is the Redis list shared by dispatch and the workers.
const DefaultQueueKey = "extraction_queue"

// RedisWorkQueue implements the WorkQueue interface on a Redis list. LPUSH
// plus BRPOP keeps the queue FIFO across any number of workers.
type RedisWorkQueue struct {
	client redis.UniversalClient
	key    string
}

// NewRedisWorkQueue creates a new RedisWorkQueue on the given list key,
// falling back to DefaultQueueKey when empty.
func NewRedisWorkQueue(client redis.UniversalClient, key string) *RedisWorkQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisWorkQueue{client: client, key: key}
}

// Enqueue pushes a work item onto the head of the list.
func (q *RedisWorkQueue) Enqueue(ctx context.Context, item *model.WorkItem) error {
	if item == nil {
		return apperrors.Validation("work item is required")
	}
	if err := item.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid work item")
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode work item")
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransient, "queue push")
	}
	return nil
}

// Dequeue blocks up to timeout for the tail item and returns nil when the
// queue stayed empty. Context cancellation aborts the wait.
func (q *RedisWorkQueue) Dequeue(ctx context.Context, timeout time.Duration) (*model.WorkItem, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransient, "queue pop")
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, apperrors.Internalf("queue pop returned %d values", len(res))
	}

	var item model.WorkItem
	if err := json.Unmarshal([]byte(res[1]), &item); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode work item")
	}
	return &item, nil
}

// Len reports the queue depth, used by status reporting and tests.
func (q *RedisWorkQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeTransient, "queue len")
	}
	return n, nil
}
