package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"genqueue/internal/domain"
)

// RedisQueue stores each tier as a redis list: RPUSH at the tail, LPOP at the
// head. LPOP is atomic, which is the only exclusivity the pipeline relies on.
type RedisQueue struct {
	rc     *redis.Client
	prefix string
}

func NewRedisQueue(rc *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "genqueue"
	}
	return &RedisQueue{rc: rc, prefix: prefix}
}

// Key returns the list key for tier.
func (q *RedisQueue) Key(tier domain.Tier) string {
	return fmt.Sprintf("%s:jobs:%s", q.prefix, tier)
}

// Enqueue pushes the whole batch with a single RPUSH so it becomes visible at
// once and in order.
func (q *RedisQueue) Enqueue(ctx context.Context, tier domain.Tier, payloads ...domain.QueuedPayload) error {
	if !ValidTier(tier) {
		return fmt.Errorf("queue: unknown tier %q", tier)
	}
	if len(payloads) == 0 {
		return nil
	}
	values := make([]any, 0, len(payloads))
	for _, p := range payloads {
		raw, err := encode(p)
		if err != nil {
			return err
		}
		values = append(values, raw)
	}
	if err := q.rc.RPush(ctx, q.Key(tier), values...).Err(); err != nil {
		return fmt.Errorf("queue: rpush %s: %w", tier, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, tier domain.Tier) (domain.QueuedPayload, error) {
	if !ValidTier(tier) {
		return domain.QueuedPayload{}, fmt.Errorf("queue: unknown tier %q", tier)
	}
	raw, err := q.rc.LPop(ctx, q.Key(tier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.QueuedPayload{}, ErrEmpty
		}
		return domain.QueuedPayload{}, fmt.Errorf("queue: lpop %s: %w", tier, err)
	}
	return decode(raw)
}

func (q *RedisQueue) Len(ctx context.Context, tier domain.Tier) (int64, error) {
	return q.rc.LLen(ctx, q.Key(tier)).Result()
}

// RedisNotifier fans wake-ups out over redis pub/sub so workers in other
// processes hear about new work.
type RedisNotifier struct {
	rc      *redis.Client
	channel string
}

func NewRedisNotifier(rc *redis.Client, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = "genqueue"
	}
	return &RedisNotifier{rc: rc, channel: prefix + ":jobs:wake"}
}

func (n *RedisNotifier) Notify(ctx context.Context) error {
	return n.rc.Publish(ctx, n.channel, "1").Err()
}

// Subscribe returns a channel that receives a value per wake-up. Wake-ups that
// arrive while the consumer is busy are coalesced.
func (n *RedisNotifier) Subscribe(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	sub := n.rc.Subscribe(ctx, n.channel)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

var (
	_ Queue    = (*RedisQueue)(nil)
	_ Notifier = (*RedisNotifier)(nil)
)
