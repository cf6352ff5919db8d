package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"genqueue/internal/domain"
	"genqueue/internal/infra"
	"genqueue/internal/providers"
	"genqueue/internal/queue"
)

const defaultIdleInterval = 2 * time.Second

// WorkerDeps wires a Worker.
type WorkerDeps struct {
	Queue        queue.Queue
	Notifier     queue.Notifier
	Jobs         domain.JobRepository
	Registry     *providers.Registry
	Poller       *Poller
	Settler      *Settler
	Concurrency  int
	IdleInterval time.Duration
	Logger       infra.Logger
}

// Worker pulls payloads from the queue and drives each job through its
// provider.
type Worker struct {
	queue        queue.Queue
	notifier     queue.Notifier
	jobs         domain.JobRepository
	registry     *providers.Registry
	poller       *Poller
	settler      *Settler
	concurrency  int
	idleInterval time.Duration
	logger       infra.Logger
}

func NewWorker(deps WorkerDeps) *Worker {
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	idle := deps.IdleInterval
	if idle <= 0 {
		idle = defaultIdleInterval
	}
	return &Worker{
		queue:        deps.Queue,
		notifier:     deps.Notifier,
		jobs:         deps.Jobs,
		registry:     deps.Registry,
		poller:       deps.Poller,
		settler:      deps.Settler,
		concurrency:  concurrency,
		idleInterval: idle,
		logger:       infra.Component(deps.Logger, "worker"),
	}
}

// Run starts the loops and blocks until ctx is done. Each loop wakes on a
// notification or on the idle ticker, whichever comes first, so lost
// notifications only delay work.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("concurrency", w.concurrency).Msg("worker: started")
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	w.logger.Info().Msg("worker: stopped")
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context) {
	var wake <-chan struct{}
	if w.notifier != nil {
		wake = w.notifier.Subscribe(ctx)
	}
	ticker := time.NewTicker(w.idleInterval)
	defer ticker.Stop()
	for {
		w.Drain(ctx)
		select {
		case <-ctx.Done():
			return
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		case <-ticker.C:
		}
	}
}

// Drain processes payloads until the queue is empty or ctx is done. It
// returns how many payloads were taken.
func (w *Worker) Drain(ctx context.Context) int {
	taken := 0
	for ctx.Err() == nil {
		payload, tier, err := queue.Next(ctx, w.queue)
		if errors.Is(err, queue.ErrEmpty) {
			return taken
		}
		var malformed *queue.MalformedPayloadError
		if errors.As(err, &malformed) {
			w.logger.Error().Err(err).Str("tier", string(tier)).Str("raw", malformed.Raw).Msg("worker: dropped malformed payload")
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("worker: dequeue failed")
			}
			return taken
		}
		taken++
		if err := w.Process(ctx, payload); err != nil {
			w.logger.Error().Err(err).Str("job_id", payload.JobID).Str("tier", string(tier)).Msg("worker: process failed")
		}
	}
	return taken
}

// Process runs one payload: submit, record the task handle, then resolve
// inline results and poll-mode tasks here. Callback-mode tasks are left in
// processing for the callback or the reaper.
func (w *Worker) Process(ctx context.Context, payload domain.QueuedPayload) error {
	log := w.logger.With().Str("job_id", payload.JobID).Str("workspace_id", payload.WorkspaceID).Logger()

	job, err := w.jobs.Get(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("worker: payload for unknown job dropped")
			return nil
		}
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status != domain.JobStatusQueued {
		log.Info().Str("status", string(job.Status)).Msg("worker: job no longer queued; skipping")
		return nil
	}

	adapter, err := w.registry.ForModel(payload.Model)
	if err != nil {
		_, ferr := w.settler.Fail(ctx, job.ID, fmt.Errorf("%w: %v", domain.ErrProviderSubmitFailed, err))
		return ferr
	}
	log = log.With().Str("provider", adapter.Name()).Logger()

	task, err := adapter.Submit(ctx, providers.SubmitRequest{
		JobID:     job.ID,
		Model:     payload.Model,
		Prompt:    payload.Prompt,
		InputURLs: payload.InputURLs,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("worker: submit failed")
		_, ferr := w.settler.Fail(ctx, job.ID, fmt.Errorf("%w: %v", domain.ErrProviderSubmitFailed, err))
		return ferr
	}
	log = log.With().Str("task_id", task.Handle).Logger()

	applied, err := w.jobs.Patch(ctx, job.ID, domain.ProcessingPatch(adapter.Name(), task.Handle))
	if err != nil {
		return fmt.Errorf("record provider task: %w", err)
	}
	if !applied {
		log.Warn().Msg("worker: job left queued before the task was recorded; provider task abandoned")
		return nil
	}
	log.Info().Msg("worker: task submitted")

	if task.Result != nil {
		_, err := w.settler.Settle(ctx, job.ID, *task.Result)
		return err
	}
	if adapter.Mode() == providers.ModeCallback {
		return nil
	}

	outcome, err := w.poller.Poll(ctx, adapter, task.Handle)
	if err != nil {
		if ctx.Err() != nil {
			// Left in processing; the reaper resolves it after restart.
			return nil
		}
		_, ferr := w.settler.Fail(ctx, job.ID, err)
		return ferr
	}
	_, err = w.settler.Settle(ctx, job.ID, outcome)
	return err
}
