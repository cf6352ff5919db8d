package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"genqueue/internal/domain"
)

func TestMemoryRepositorySettleSuccessOnce(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()
	job := &domain.Job{ID: "j1", WorkspaceID: "w1", Status: domain.JobStatusQueued}
	if err := r.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if ok, _ := r.SettleSuccess(ctx, "j1", &domain.Asset{ID: "a0"}); ok {
		t.Fatalf("queued job must not settle to success")
	}
	if ok, err := r.Patch(ctx, "j1", domain.ProcessingPatch("kie", "task-1")); err != nil || !ok {
		t.Fatalf("processing patch: %v %v", ok, err)
	}
	if ok, err := r.SettleSuccess(ctx, "j1", &domain.Asset{ID: "a1", URL: "https://cdn/1.png"}); err != nil || !ok {
		t.Fatalf("settle: %v %v", ok, err)
	}
	if ok, _ := r.SettleSuccess(ctx, "j1", &domain.Asset{ID: "a2", URL: "https://cdn/2.png"}); ok {
		t.Fatalf("second settle must be a no-op")
	}
	if n := len(r.Assets()); n != 1 {
		t.Fatalf("assets = %d, want 1", n)
	}
	got, err := r.GetByProviderTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("get by task: %v", err)
	}
	if got.Status != domain.JobStatusSuccess || got.ResultAssetID != "a1" || got.ResultURL != "https://cdn/1.png" {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestMemoryRepositoryListByWorkspaceNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	r := NewMemoryJobRepository().WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	for _, id := range []string{"a", "b", "c"} {
		if err := r.Create(ctx, &domain.Job{ID: id, WorkspaceID: "w1", Status: domain.JobStatusQueued}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	_ = r.Create(ctx, &domain.Job{ID: "other", WorkspaceID: "w2", Status: domain.JobStatusQueued})

	jobs, err := r.ListByWorkspace(ctx, "w1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "c" || jobs[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", jobs)
	}
}

func TestMemoryRepositoryRejectsDuplicateProviderTask(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()
	_ = r.Create(ctx, &domain.Job{ID: "j1", Status: domain.JobStatusQueued})
	_ = r.Create(ctx, &domain.Job{ID: "j2", Status: domain.JobStatusQueued})
	if _, err := r.Patch(ctx, "j1", domain.ProcessingPatch("kie", "t")); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if _, err := r.Patch(ctx, "j2", domain.ProcessingPatch("kie", "t")); err == nil {
		t.Fatalf("expected duplicate task handle error")
	}
	if _, err := r.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryWorkspaceRepositoryDefault(t *testing.T) {
	r := NewMemoryWorkspaceRepository()
	r.AddMember("u1", "w1")
	r.AddMember("u1", "w2")
	ctx := context.Background()
	if id, err := r.DefaultWorkspace(ctx, "u1"); err != nil || id != "w1" {
		t.Fatalf("default = %q %v", id, err)
	}
	if ok, _ := r.IsMember(ctx, "u1", "w2"); !ok {
		t.Fatalf("u1 should be member of w2")
	}
	if _, err := r.DefaultWorkspace(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryWorkspaceRepositoryPersonal(t *testing.T) {
	r := NewMemoryWorkspaceRepository().WithPersonalWorkspaces()
	ctx := context.Background()
	id, err := r.DefaultWorkspace(ctx, "u1")
	if err != nil || id != "personal-u1" {
		t.Fatalf("default = %q %v", id, err)
	}
	if ok, _ := r.IsMember(ctx, "u1", id); !ok {
		t.Fatalf("u1 should own its personal workspace")
	}
	if ok, _ := r.IsMember(ctx, "u2", id); ok {
		t.Fatalf("u2 must not see u1's personal workspace")
	}
}

func TestMemoryRepositoryMarkEnqueuedOnlyQueued(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()
	_ = r.Create(ctx, &domain.Job{ID: "j1", Status: domain.JobStatusQueued})
	_ = r.Create(ctx, &domain.Job{ID: "j2", Status: domain.JobStatusQueued})
	if _, err := r.Patch(ctx, "j2", domain.FailedPatch("boom")); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if err := r.MarkEnqueued(ctx, []string{"j1", "j2", "missing"}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if j, _ := r.Get(ctx, "j1"); j.EnqueuedAt.IsZero() {
		t.Fatalf("queued job not marked")
	}
	if j, _ := r.Get(ctx, "j2"); !j.EnqueuedAt.IsZero() {
		t.Fatalf("failed job must not be marked")
	}
}
