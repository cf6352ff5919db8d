package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"genqueue/internal/adapter/repo"
	"genqueue/internal/domain"
	"genqueue/internal/exchange"
	"genqueue/internal/providers"
	"genqueue/internal/queue"
	"genqueue/internal/storage"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scriptedAdapter replays Resolve results in order; the last one repeats.
type scriptedAdapter struct {
	name      string
	mode      providers.Mode
	submitErr error
	result    *providers.Outcome
	mu        sync.Mutex
	resolves  []resolveStep
	submits   []providers.SubmitRequest
	resolved  int
}

type resolveStep struct {
	outcome providers.Outcome
	err     error
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) Mode() providers.Mode { return a.mode }

func (a *scriptedAdapter) Submit(ctx context.Context, req providers.SubmitRequest) (providers.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submits = append(a.submits, req)
	if a.submitErr != nil {
		return providers.Task{}, a.submitErr
	}
	return providers.Task{Handle: a.name + "-task-" + req.JobID, Result: a.result}, nil
}

func (a *scriptedAdapter) Resolve(ctx context.Context, handle string) (providers.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resolved++
	if len(a.resolves) == 0 {
		return providers.Pending(), nil
	}
	step := a.resolves[0]
	if len(a.resolves) > 1 {
		a.resolves = a.resolves[1:]
	}
	return step.outcome, step.err
}

func (a *scriptedAdapter) Submits() []providers.SubmitRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]providers.SubmitRequest(nil), a.submits...)
}

type harness struct {
	t          *testing.T
	clock      *testClock
	jobs       *repo.MemoryJobRepository
	workspaces *repo.MemoryWorkspaceRepository
	queue      *queue.MemoryQueue
	notifier   *queue.LocalNotifier
	exchange   *exchange.MemoryStore
	registry   *providers.Registry
	storageDir string
	admitter   *Admitter
	settler    *Settler
	poller     *Poller
	worker     *Worker
	reconciler *Reconciler
	results    *httptest.Server
	fetches    atomic.Int32
}

func newHarness(t *testing.T, adapters ...*scriptedAdapter) *harness {
	t.Helper()
	h := &harness{
		t:          t,
		clock:      &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		workspaces: repo.NewMemoryWorkspaceRepository(),
		queue:      queue.NewMemoryQueue(),
		notifier:   queue.NewLocalNotifier(),
		registry:   providers.NewRegistry(),
		storageDir: t.TempDir(),
	}
	h.jobs = repo.NewMemoryJobRepository().WithClock(h.clock.Now)
	h.exchange = exchange.NewMemoryStore(10 * time.Minute)
	h.workspaces.AddMember("user-free", "ws-free")
	h.workspaces.AddMember("user-pro", "ws-pro")

	for _, a := range adapters {
		h.registry.Register(a, a.name+"-model")
	}
	if len(adapters) > 0 {
		h.registry.SetDefaultModel(adapters[0].name + "-model")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/result.png", func(w http.ResponseWriter, r *http.Request) {
		h.fetches.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	})
	mux.HandleFunc("/expired.png", func(w http.ResponseWriter, r *http.Request) {
		h.fetches.Add(1)
		http.Error(w, "gone", http.StatusForbidden)
	})
	h.results = httptest.NewServer(mux)
	t.Cleanup(h.results.Close)

	store, err := storage.NewFileStore(h.storageDir, "http://assets.test/static")
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	logger := zerolog.Nop()
	persister := NewPersister(store, h.results.Client(), 1<<20)
	h.settler = NewSettler(h.jobs, persister, logger)
	h.poller = NewPoller(PollPolicy{Interval: time.Millisecond, MaxAttempts: 5}, logger)
	h.poller.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	h.poller.now = h.clock.Now
	h.admitter = NewAdmitter(AdmitterDeps{
		Jobs:          h.jobs,
		Workspaces:    h.workspaces,
		Queue:         h.queue,
		Notifier:      h.notifier,
		Exchange:      h.exchange,
		Registry:      h.registry,
		PublicBaseURL: "https://gen.test",
		Logger:        logger,
	})
	h.worker = NewWorker(WorkerDeps{
		Queue:    h.queue,
		Notifier: h.notifier,
		Jobs:     h.jobs,
		Registry: h.registry,
		Poller:   h.poller,
		Settler:  h.settler,
		Logger:   logger,
	})
	h.reconciler = NewReconciler(h.jobs, h.registry, h.settler, logger)
	return h
}

func (h *harness) resultURL() string { return h.results.URL + "/result.png" }

func (h *harness) expiredURL() string { return h.results.URL + "/expired.png" }

func (h *harness) admit(caller domain.Caller, req AdmitRequest) AdmitResult {
	h.t.Helper()
	res, err := h.admitter.Admit(context.Background(), caller, req)
	if err != nil {
		h.t.Fatalf("admit: %v", err)
	}
	return res
}

func (h *harness) job(id string) *domain.Job {
	h.t.Helper()
	j, err := h.jobs.Get(context.Background(), id)
	if err != nil {
		h.t.Fatalf("get job %s: %v", id, err)
	}
	return j
}

func freeCaller() domain.Caller {
	return domain.Caller{UserID: "user-free", Plan: domain.UserPlanFree}
}

func proCaller() domain.Caller {
	return domain.Caller{UserID: "user-pro", Plan: domain.UserPlanPro}
}

var errTransient = errors.New("connection reset by peer")
