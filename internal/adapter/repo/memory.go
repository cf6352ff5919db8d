package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"genqueue/internal/domain"
)

// MemoryJobRepository keeps jobs in process memory. It backs JOB_STORE=memory
// for local runs and doubles as the store in tests.
type MemoryJobRepository struct {
	mu     sync.Mutex
	jobs   map[string]*domain.Job
	assets map[string]domain.Asset
	now    func() time.Time
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs:   make(map[string]*domain.Job),
		assets: make(map[string]domain.Asset),
		now:    time.Now,
	}
}

// WithClock overrides the timestamp source.
func (r *MemoryJobRepository) WithClock(now func() time.Time) *MemoryJobRepository {
	r.now = now
	return r
}

func (r *MemoryJobRepository) Create(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("create job: id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("create job: duplicate id %s", job.ID)
	}
	now := r.now()
	job.CreatedAt, job.UpdatedAt = now, now
	stored := cloneJob(*job)
	r.jobs[job.ID] = &stored
	return nil
}

func (r *MemoryJobRepository) Patch(ctx context.Context, jobID string, p domain.JobPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return false, nil
	}
	if p.ProviderTask != nil && *p.ProviderTask != "" {
		for id, other := range r.jobs {
			if id != jobID && other.ProviderTask == *p.ProviderTask {
				return false, fmt.Errorf("patch job %s: provider task %s already linked", jobID, *p.ProviderTask)
			}
		}
	}
	return p.Apply(job, r.now()), nil
}

func (r *MemoryJobRepository) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneJob(*job)
	return &out, nil
}

func (r *MemoryJobRepository) GetByProviderTask(ctx context.Context, handle string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle == "" {
		return nil, domain.ErrNotFound
	}
	for _, job := range r.jobs {
		if job.ProviderTask == handle {
			out := cloneJob(*job)
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemoryJobRepository) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Job
	for _, job := range r.jobs {
		if job.WorkspaceID == workspaceID {
			out = append(out, cloneJob(*job))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryJobRepository) ListStale(ctx context.Context, status domain.JobStatus, olderThan time.Time, limit int) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Job
	for _, job := range r.jobs {
		if job.Status == status && job.UpdatedAt.Before(olderThan) {
			out = append(out, cloneJob(*job))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryJobRepository) MarkEnqueued(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, id := range ids {
		if job, ok := r.jobs[id]; ok && job.Status == domain.JobStatusQueued {
			job.EnqueuedAt = now
		}
	}
	return nil
}

func (r *MemoryJobRepository) SettleSuccess(ctx context.Context, jobID string, asset *domain.Asset) (bool, error) {
	if asset == nil || asset.ID == "" {
		return false, fmt.Errorf("settle job %s: asset id is required", jobID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.Status != domain.JobStatusProcessing {
		return false, nil
	}
	now := r.now()
	stored := *asset
	stored.JobID = job.ID
	stored.WorkspaceID = job.WorkspaceID
	stored.CreatedAt = now
	r.assets[stored.ID] = stored

	job.Status = domain.JobStatusSuccess
	job.ResultAssetID = stored.ID
	job.ResultURL = stored.URL
	job.ErrorMessage = ""
	job.UpdatedAt = now
	return true, nil
}

// Assets returns the recorded result assets.
func (r *MemoryJobRepository) Assets() []domain.Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, a)
	}
	return out
}

func cloneJob(j domain.Job) domain.Job {
	j.InputRefs = append([]string(nil), j.InputRefs...)
	return j
}

// MemoryWorkspaceRepository serves a static membership table.
type MemoryWorkspaceRepository struct {
	mu       sync.RWMutex
	defaults map[string]string
	members  map[string]map[string]bool
	personal bool
}

func NewMemoryWorkspaceRepository() *MemoryWorkspaceRepository {
	return &MemoryWorkspaceRepository{
		defaults: make(map[string]string),
		members:  make(map[string]map[string]bool),
	}
}

// AddMember registers userID in workspaceID; the first workspace added for a
// user becomes the default.
func (r *MemoryWorkspaceRepository) AddMember(userID, workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[userID] == nil {
		r.members[userID] = make(map[string]bool)
	}
	r.members[userID][workspaceID] = true
	if _, ok := r.defaults[userID]; !ok {
		r.defaults[userID] = workspaceID
	}
}

// WithPersonalWorkspaces gives every user an implicit workspace named
// "personal-<user id>". Local runs without a database rely on it.
func (r *MemoryWorkspaceRepository) WithPersonalWorkspaces() *MemoryWorkspaceRepository {
	r.mu.Lock()
	r.personal = true
	r.mu.Unlock()
	return r
}

func personalWorkspace(userID string) string {
	return "personal-" + userID
}

func (r *MemoryWorkspaceRepository) DefaultWorkspace(ctx context.Context, userID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.defaults[userID]; ok {
		return id, nil
	}
	if r.personal && userID != "" {
		return personalWorkspace(userID), nil
	}
	return "", domain.ErrNotFound
}

func (r *MemoryWorkspaceRepository) IsMember(ctx context.Context, userID, workspaceID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.personal && userID != "" && workspaceID == personalWorkspace(userID) {
		return true, nil
	}
	return r.members[userID][workspaceID], nil
}

var (
	_ domain.JobRepository       = (*MemoryJobRepository)(nil)
	_ domain.WorkspaceRepository = (*MemoryWorkspaceRepository)(nil)
)
