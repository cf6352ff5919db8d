package queue

import (
	"context"
	"fmt"
	"sync"

	"genqueue/internal/domain"
)

// MemoryQueue is the single-process Queue used when no REDIS_URL is set.
// Payloads are stored encoded so they go through the same codec as redis.
type MemoryQueue struct {
	mu    sync.Mutex
	tiers map[domain.Tier][][]byte
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{tiers: make(map[domain.Tier][][]byte)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, tier domain.Tier, payloads ...domain.QueuedPayload) error {
	if !ValidTier(tier) {
		return fmt.Errorf("queue: unknown tier %q", tier)
	}
	batch := make([][]byte, 0, len(payloads))
	for _, p := range payloads {
		raw, err := encode(p)
		if err != nil {
			return err
		}
		batch = append(batch, raw)
	}
	q.mu.Lock()
	q.tiers[tier] = append(q.tiers[tier], batch...)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, tier domain.Tier) (domain.QueuedPayload, error) {
	if !ValidTier(tier) {
		return domain.QueuedPayload{}, fmt.Errorf("queue: unknown tier %q", tier)
	}
	q.mu.Lock()
	items := q.tiers[tier]
	if len(items) == 0 {
		q.mu.Unlock()
		return domain.QueuedPayload{}, ErrEmpty
	}
	raw := items[0]
	items[0] = nil
	q.tiers[tier] = items[1:]
	q.mu.Unlock()
	return decode(raw)
}

func (q *MemoryQueue) Len(ctx context.Context, tier domain.Tier) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.tiers[tier])), nil
}

// LocalNotifier delivers wake-ups to subscribers in this process.
type LocalNotifier struct {
	mu   sync.Mutex
	subs []chan struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{}
}

func (n *LocalNotifier) Notify(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (n *LocalNotifier) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()
	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, c := range n.subs {
			if c == ch {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

var (
	_ Queue    = (*MemoryQueue)(nil)
	_ Notifier = (*LocalNotifier)(nil)
)
