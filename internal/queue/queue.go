// Package queue holds pending generation payloads in two priority tiers.
//
// Dequeue is destructive: a payload handed to one worker is never visible to
// another. Within a tier order is FIFO; across tiers the only guarantee is
// that high drains before low.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"genqueue/internal/domain"
)

// ErrEmpty is returned by Dequeue when the tier has nothing pending.
var ErrEmpty = errors.New("queue: empty")

// Queue is the durable two-tier FIFO.
type Queue interface {
	// Enqueue appends payloads to the tail of tier as one batch, in order.
	Enqueue(ctx context.Context, tier domain.Tier, payloads ...domain.QueuedPayload) error
	// Dequeue pops the head of tier or returns ErrEmpty.
	Dequeue(ctx context.Context, tier domain.Tier) (domain.QueuedPayload, error)
	Len(ctx context.Context, tier domain.Tier) (int64, error)
}

// Notifier carries best-effort wake-ups to idle workers. Losing every
// notification only costs latency: workers also poll on a timer.
type Notifier interface {
	Notify(ctx context.Context) error
	Subscribe(ctx context.Context) <-chan struct{}
}

// Tiers lists tiers in precedence order.
func Tiers() []domain.Tier {
	return []domain.Tier{domain.TierHigh, domain.TierLow}
}

// ValidTier reports whether t is a known tier.
func ValidTier(t domain.Tier) bool {
	return t == domain.TierHigh || t == domain.TierLow
}

// Next pops from high until it is empty, then from low. It returns the tier
// the payload came from.
func Next(ctx context.Context, q Queue) (domain.QueuedPayload, domain.Tier, error) {
	for _, tier := range Tiers() {
		p, err := q.Dequeue(ctx, tier)
		if err == nil {
			return p, tier, nil
		}
		if !errors.Is(err, ErrEmpty) {
			return domain.QueuedPayload{}, tier, err
		}
	}
	return domain.QueuedPayload{}, "", ErrEmpty
}

func encode(p domain.QueuedPayload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: encode payload %s: %w", p.JobID, err)
	}
	return raw, nil
}

// MalformedPayloadError is returned when a popped entry cannot be decoded.
// The entry is already gone from the queue.
type MalformedPayloadError struct {
	Raw string
	Err error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("queue: malformed payload: %v", e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

func decode(raw []byte) (domain.QueuedPayload, error) {
	var p domain.QueuedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.QueuedPayload{}, &MalformedPayloadError{Raw: string(raw), Err: err}
	}
	if p.JobID == "" {
		return domain.QueuedPayload{}, &MalformedPayloadError{Raw: string(raw), Err: errors.New("missing job_id")}
	}
	return p, nil
}
