package orchestrator

import (
	"context"
	"fmt"
	"time"

	"genqueue/internal/domain"
	"genqueue/internal/infra"
	"genqueue/internal/providers"
	"genqueue/internal/queue"
)

const (
	reaperBatch          = 100
	neverDispatchedError = "job was never dispatched"
)

// ReaperOptions tunes the sweep.
type ReaperOptions struct {
	Interval    time.Duration
	OrphanAfter time.Duration
	StaleAfter  time.Duration
}

// SweepStats counts what one sweep changed.
type SweepStats struct {
	Orphaned int
	Resolved int
	TimedOut int
}

// Reaper settles jobs the normal flow lost: queued jobs whose enqueue failed
// or whose payload was dropped, and processing jobs whose callback never came
// or whose poller died with its process. Queued jobs still waiting behind a
// backlog are left alone.
type Reaper struct {
	jobs     domain.JobRepository
	queue    queue.Queue
	registry *providers.Registry
	settler  *Settler
	opts     ReaperOptions
	logger   infra.Logger
	now      func() time.Time
}

func NewReaper(jobs domain.JobRepository, q queue.Queue, registry *providers.Registry, settler *Settler, opts ReaperOptions, logger infra.Logger) *Reaper {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.OrphanAfter <= 0 {
		opts.OrphanAfter = 30 * time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 20 * time.Minute
	}
	return &Reaper{
		jobs:     jobs,
		queue:    q,
		registry: registry,
		settler:  settler,
		opts:     opts,
		logger:   infra.Component(logger, "reaper"),
		now:      time.Now,
	}
}

// Run sweeps every Interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats, err := r.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("sweep failed")
				continue
			}
			if stats.Orphaned+stats.Resolved+stats.TimedOut > 0 {
				r.logger.Info().
					Int("orphaned", stats.Orphaned).
					Int("resolved", stats.Resolved).
					Int("timed_out", stats.TimedOut).
					Msg("sweep settled jobs")
			}
		}
	}
}

// Sweep runs one pass. Orphaned queued jobs are failed, not re-enqueued.
// Stale processing jobs get one Resolve through their adapter.
func (r *Reaper) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := r.now()

	queued, err := r.jobs.ListStale(ctx, domain.JobStatusQueued, now.Add(-r.opts.OrphanAfter), reaperBatch)
	if err != nil {
		return stats, fmt.Errorf("list orphaned jobs: %w", err)
	}
	backlog := -1
	for _, job := range queued {
		if !job.EnqueuedAt.IsZero() {
			// The payload reached the queue. It can only be lost once
			// nothing is left to dispatch.
			if backlog < 0 {
				backlog = r.backlog(ctx)
			}
			if backlog != 0 {
				continue
			}
		}
		applied, err := r.jobs.Patch(ctx, job.ID, domain.FailedPatch(neverDispatchedError))
		if err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("fail orphaned job")
			continue
		}
		if applied {
			stats.Orphaned++
		}
	}

	processing, err := r.jobs.ListStale(ctx, domain.JobStatusProcessing, now.Add(-r.opts.StaleAfter), reaperBatch)
	if err != nil {
		return stats, fmt.Errorf("list stale jobs: %w", err)
	}
	for _, job := range processing {
		resolved, err := r.resolveStale(ctx, job)
		if err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("settle stale job")
			continue
		}
		if resolved {
			stats.Resolved++
		} else {
			stats.TimedOut++
		}
	}
	return stats, nil
}

// backlog returns the number of pending payloads across tiers. Errors count
// as a non-empty backlog.
func (r *Reaper) backlog(ctx context.Context) int {
	if r.queue == nil {
		return 1
	}
	var total int64
	for _, tier := range queue.Tiers() {
		n, err := r.queue.Len(ctx, tier)
		if err != nil {
			r.logger.Warn().Err(err).Str("tier", string(tier)).Msg("queue length unavailable; skipping enqueued jobs")
			return 1
		}
		total += n
	}
	return int(total)
}

func (r *Reaper) resolveStale(ctx context.Context, job domain.Job) (bool, error) {
	timeout := fmt.Errorf("%w: no result within %s", domain.ErrProviderTimeout, r.opts.StaleAfter)
	adapter, ok := r.registry.ByName(job.Provider)
	if !ok || job.ProviderTask == "" {
		_, err := r.settler.Fail(ctx, job.ID, timeout)
		return false, err
	}
	outcome, err := adapter.Resolve(ctx, job.ProviderTask)
	if err != nil || !outcome.Terminal() {
		if err != nil {
			r.logger.Warn().Err(err).Str("job_id", job.ID).Str("task_id", job.ProviderTask).Msg("final resolve failed")
		}
		_, ferr := r.settler.Fail(ctx, job.ID, timeout)
		return false, ferr
	}
	_, err = r.settler.Settle(ctx, job.ID, outcome)
	return err == nil, err
}
