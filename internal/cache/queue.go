package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Queue is the FIFO list of card IDs a user is studying in one deck.
// Cards are pushed on the right and popped from the left.
//
// None of the methods return errors: a failed call is logged and reported
// as an empty result.
type Queue struct {
	c   *Client
	key string
}

// Length returns the number of queued card IDs.
func (q *Queue) Length(ctx context.Context) int {
	n, err := q.c.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		q.c.warn("Failed to read queue length", err, "key", q.key)
		return 0
	}
	return int(n)
}

// PopNext removes and returns the card at the head of the queue. ok is false
// when the queue is empty or unreachable.
func (q *Queue) PopNext(ctx context.Context) (cardID string, ok bool) {
	id, err := q.c.rdb.LPop(ctx, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		q.c.warn("Failed to pop from queue", err, "key", q.key)
		return "", false
	}
	return id, true
}

// PopMany pops up to n cards from the head of the queue.
func (q *Queue) PopMany(ctx context.Context, n int) []string {
	ids := make([]string, 0, n)
	for len(ids) < n {
		id, ok := q.PopNext(ctx)
		if !ok {
			break
		}
		ids = append(ids, id)
	}
	return ids
}

// Set replaces the queue with cardIDs and restarts its expiry. The delete,
// push and expire run in one MULTI so readers never see a partial queue.
func (q *Queue) Set(ctx context.Context, cardIDs []string) {
	_, err := q.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, q.key)
		if len(cardIDs) > 0 {
			pipe.RPush(ctx, q.key, toArgs(cardIDs)...)
			pipe.Expire(ctx, q.key, q.c.opts.QueueTTL)
		}
		return nil
	})
	if err != nil {
		q.c.warn("Failed to replace queue", err, "key", q.key, "size", len(cardIDs))
	}
}

// AppendMany pushes cardIDs onto the tail of the queue.
func (q *Queue) AppendMany(ctx context.Context, cardIDs []string) {
	if len(cardIDs) == 0 {
		return
	}
	_, err := q.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, q.key, toArgs(cardIDs)...)
		pipe.Expire(ctx, q.key, q.c.opts.QueueTTL)
		return nil
	})
	if err != nil {
		q.c.warn("Failed to append to queue", err, "key", q.key, "size", len(cardIDs))
	}
}

// Range returns the whole queue, head first, without removing anything.
func (q *Queue) Range(ctx context.Context) []string {
	ids, err := q.c.rdb.LRange(ctx, q.key, 0, -1).Result()
	if err != nil {
		q.c.warn("Failed to read queue", err, "key", q.key)
		return nil
	}
	return ids
}

// Clear deletes the queue.
func (q *Queue) Clear(ctx context.Context) {
	if err := q.c.rdb.Del(ctx, q.key).Err(); err != nil {
		q.c.warn("Failed to clear queue", err, "key", q.key)
	}
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
