package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"genqueue/internal/infra"
)

// breakerAdapter guards Submit with a circuit breaker so a provider that is
// down fails fast instead of tying up workers. Resolve and ParseCallback pass
// straight through: tasks already accepted still need settling.
type breakerAdapter struct {
	Adapter
	cb     *gobreaker.CircuitBreaker
	logger infra.Logger
}

// WithBreaker wraps adapter. The circuit opens once at least three recent
// submissions saw a failure ratio of 60% or more.
func WithBreaker(adapter Adapter, logger infra.Logger) Adapter {
	b := &breakerAdapter{Adapter: adapter, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        adapter.Name(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAgainstProvider(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider circuit state changed")
		},
	})
	if p, ok := adapter.(CallbackParser); ok {
		return &breakerCallbackAdapter{breakerAdapter: b, parser: p}
	}
	return b
}

// countsAgainstProvider reports whether err says something about provider
// health. Cancellation, missing credentials and requests the provider
// rejected as malformed do not; throttling does.
func countsAgainstProvider(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrMissingAPIKey),
		errors.Is(err, ErrInvalidRequest):
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Status >= 500 || status.Status == http.StatusTooManyRequests || status.Status == http.StatusRequestTimeout
	}
	return true
}

// RequiresInput forwards to the wrapped adapter.
func (b *breakerAdapter) RequiresInput(model string) bool {
	if req, ok := b.Adapter.(InputRequirer); ok {
		return req.RequiresInput(model)
	}
	return false
}

func (b *breakerAdapter) Submit(ctx context.Context, req SubmitRequest) (Task, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.Adapter.Submit(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Task{}, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return Task{}, err
	}
	return res.(Task), nil
}

// State exposes the breaker state for diagnostics.
func (b *breakerAdapter) State() gobreaker.State {
	return b.cb.State()
}

type breakerCallbackAdapter struct {
	*breakerAdapter
	parser CallbackParser
}

func (b *breakerCallbackAdapter) ParseCallback(body []byte) (string, Outcome, error) {
	return b.parser.ParseCallback(body)
}
