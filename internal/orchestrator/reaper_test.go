package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"genqueue/internal/domain"
	"genqueue/internal/providers"
)

func newTestReaper(h *harness) *Reaper {
	r := NewReaper(h.jobs, h.queue, h.registry, h.settler, ReaperOptions{
		OrphanAfter: 30 * time.Minute,
		StaleAfter:  20 * time.Minute,
	}, zerolog.Nop())
	r.now = h.clock.Now
	return r
}

func TestReaperFailsJobsWhoseEnqueueFailed(t *testing.T) {
	h := newHarness(t, &scriptedAdapter{name: "qwen", mode: providers.ModePoll})
	h.admitter.queue = failingQueue{h.queue}
	var ids []string
	h.admitter.newID = func() string {
		id := "job-" + string(rune('a'+len(ids)))
		ids = append(ids, id)
		return id
	}
	if _, err := h.admitter.Admit(context.Background(), freeCaller(), AdmitRequest{Prompt: "x", Variations: 2}); err == nil {
		t.Fatalf("expected enqueue failure")
	}
	failed := append([]string(nil), ids...)
	// Unrelated backlog must not protect jobs that never reached the queue.
	h.admitter.queue = h.queue
	h.admit(proCaller(), AdmitRequest{Prompt: "y"})
	reaper := newTestReaper(h)

	h.clock.Advance(29 * time.Minute)
	if stats, _ := reaper.Sweep(context.Background()); stats.Orphaned != 0 {
		t.Fatalf("young queued job reaped")
	}
	h.clock.Advance(2 * time.Minute)
	stats, err := reaper.Sweep(context.Background())
	if err != nil || stats.Orphaned != 2 {
		t.Fatalf("stats = %+v, %v", stats, err)
	}
	for _, id := range failed {
		j := h.job(id)
		if j.Status != domain.JobStatusFailed || j.ErrorMessage != "job was never dispatched" {
			t.Fatalf("job %s = %s %q", id, j.Status, j.ErrorMessage)
		}
	}
	if n, _ := h.queue.Len(context.Background(), domain.TierHigh); n != 1 {
		t.Fatalf("reaper must not touch the queue, len = %d", n)
	}
}

func TestReaperLeavesBackloggedJobsQueued(t *testing.T) {
	adapter := &scriptedAdapter{name: "qwen", mode: providers.ModePoll}
	h := newHarness(t, adapter)
	res := h.admit(freeCaller(), AdmitRequest{Prompt: "x"})

	h.clock.Advance(31 * time.Minute)
	stats, err := newTestReaper(h).Sweep(context.Background())
	if err != nil || stats.Orphaned != 0 {
		t.Fatalf("stats = %+v, %v", stats, err)
	}
	if j := h.job(res.JobIDs[0]); j.Status != domain.JobStatusQueued {
		t.Fatalf("waiting job = %s %q", j.Status, j.ErrorMessage)
	}

	adapter.resolves = []resolveStep{{outcome: providers.Succeeded(h.resultURL())}}
	h.worker.Drain(context.Background())
	if len(adapter.Submits()) != 1 {
		t.Fatalf("submits = %d, want 1", len(adapter.Submits()))
	}
	if j := h.job(res.JobIDs[0]); j.Status != domain.JobStatusSuccess {
		t.Fatalf("status after drain = %s (%s)", j.Status, j.ErrorMessage)
	}
}

func TestReaperFailsEnqueuedJobWithLostPayload(t *testing.T) {
	h := newHarness(t, &scriptedAdapter{name: "qwen", mode: providers.ModePoll})
	res := h.admit(freeCaller(), AdmitRequest{Prompt: "x"})
	if _, err := h.queue.Dequeue(context.Background(), domain.TierLow); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	h.clock.Advance(31 * time.Minute)
	stats, err := newTestReaper(h).Sweep(context.Background())
	if err != nil || stats.Orphaned != 1 {
		t.Fatalf("stats = %+v, %v", stats, err)
	}
	if j := h.job(res.JobIDs[0]); j.Status != domain.JobStatusFailed || j.ErrorMessage != "job was never dispatched" {
		t.Fatalf("job = %s %q", j.Status, j.ErrorMessage)
	}
}

func TestReaperResolvesStaleProcessingJob(t *testing.T) {
	adapter := &scriptedAdapter{name: "kie", mode: providers.ModeCallback}
	h := newHarness(t, adapter)
	res := h.admit(freeCaller(), AdmitRequest{Prompt: "x"})
	h.worker.Drain(context.Background())
	adapter.resolves = []resolveStep{{outcome: providers.Succeeded(h.resultURL())}}

	h.clock.Advance(21 * time.Minute)
	stats, err := newTestReaper(h).Sweep(context.Background())
	if err != nil || stats.Resolved != 1 {
		t.Fatalf("stats = %+v, %v", stats, err)
	}
	if j := h.job(res.JobIDs[0]); j.Status != domain.JobStatusSuccess {
		t.Fatalf("status = %s (%s)", j.Status, j.ErrorMessage)
	}
}

func TestReaperTimesOutStillPendingJob(t *testing.T) {
	adapter := &scriptedAdapter{name: "kie", mode: providers.ModeCallback}
	h := newHarness(t, adapter)
	res := h.admit(freeCaller(), AdmitRequest{Prompt: "x"})
	h.worker.Drain(context.Background())
	adapter.resolves = []resolveStep{{err: errors.New("kie: status 502")}}

	h.clock.Advance(21 * time.Minute)
	stats, err := newTestReaper(h).Sweep(context.Background())
	if err != nil || stats.TimedOut != 1 {
		t.Fatalf("stats = %+v, %v", stats, err)
	}
	j := h.job(res.JobIDs[0])
	if j.Status != domain.JobStatusFailed || !strings.HasPrefix(j.ErrorMessage, "provider timeout") {
		t.Fatalf("job = %s %q", j.Status, j.ErrorMessage)
	}
	if adapter.resolved != 1 {
		t.Fatalf("resolve calls = %d, want exactly 1", adapter.resolved)
	}
}
