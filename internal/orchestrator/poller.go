package orchestrator

import (
	"context"
	"fmt"
	"time"

	"genqueue/internal/domain"
	"genqueue/internal/infra"
	"genqueue/internal/providers"
)

// PollPolicy bounds how long a poll-mode task is waited for.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollPolicy waits up to 20 x 1.5s.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: 1500 * time.Millisecond, MaxAttempts: 20}
}

// pollState is carried from one iteration to the next.
type pollState struct {
	Attempt  int
	Deadline time.Time
}

func (s pollState) exhausted(p PollPolicy, now time.Time) bool {
	return s.Attempt >= p.MaxAttempts || !now.Before(s.Deadline)
}

// Poller resolves a submitted task by asking the provider until it settles or
// the budget runs out.
type Poller struct {
	policy PollPolicy
	logger infra.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewPoller(policy PollPolicy, logger infra.Logger) *Poller {
	def := DefaultPollPolicy()
	if policy.Interval <= 0 {
		policy.Interval = def.Interval
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	return &Poller{
		policy: policy,
		logger: infra.Component(logger, "poller"),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Poll returns the first terminal outcome. A failed Resolve call consumes an
// attempt and polling continues; running out of attempts returns
// domain.ErrProviderTimeout. Cancellation of ctx returns ctx.Err().
func (p *Poller) Poll(ctx context.Context, adapter providers.Adapter, handle string) (providers.Outcome, error) {
	// Slack keeps the deadline from cutting the final attempt short when
	// Resolve calls themselves take time.
	budget := p.policy.Interval*time.Duration(p.policy.MaxAttempts) + p.policy.Interval
	state := pollState{Deadline: p.now().Add(budget)}
	for !state.exhausted(p.policy, p.now()) {
		if err := p.sleep(ctx, p.policy.Interval); err != nil {
			return providers.Outcome{}, err
		}
		var (
			outcome providers.Outcome
			done    bool
			err     error
		)
		state, outcome, done, err = p.step(ctx, adapter, handle, state)
		if err != nil {
			return providers.Outcome{}, err
		}
		if done {
			return outcome, nil
		}
	}
	return providers.Outcome{}, fmt.Errorf("%w: no result from %s after %d attempts", domain.ErrProviderTimeout, adapter.Name(), state.Attempt)
}

func (p *Poller) step(ctx context.Context, adapter providers.Adapter, handle string, state pollState) (pollState, providers.Outcome, bool, error) {
	state.Attempt++
	outcome, err := adapter.Resolve(ctx, handle)
	if err != nil {
		if ctx.Err() != nil {
			return state, providers.Outcome{}, false, ctx.Err()
		}
		p.logger.Warn().Err(err).
			Str("provider", adapter.Name()).
			Str("task_id", handle).
			Int("attempt", state.Attempt).
			Msg("resolve failed; retrying")
		return state, providers.Outcome{}, false, nil
	}
	if outcome.Terminal() {
		return state, outcome, true, nil
	}
	return state, outcome, false, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
