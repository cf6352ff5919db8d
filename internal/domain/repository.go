package domain

import (
	"context"
	"time"
)

// JobRepository is the durable job record store.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	// Patch applies p and reports whether its ExpectFrom guard held.
	Patch(ctx context.Context, jobID string, p JobPatch) (bool, error)
	Get(ctx context.Context, jobID string) (*Job, error)
	GetByProviderTask(ctx context.Context, handle string) (*Job, error)
	ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]Job, error)
	ListStale(ctx context.Context, status JobStatus, olderThan time.Time, limit int) ([]Job, error)
	// MarkEnqueued records that the payloads of the queued jobs in ids
	// reached the queue.
	MarkEnqueued(ctx context.Context, ids []string) error
	// SettleSuccess records asset and flips the job processing -> success in
	// one step. It reports false, creating nothing, when the job is not
	// processing.
	SettleSuccess(ctx context.Context, jobID string, asset *Asset) (bool, error)
}

// WorkspaceRepository resolves which workspaces a user may act in.
type WorkspaceRepository interface {
	DefaultWorkspace(ctx context.Context, userID string) (string, error)
	IsMember(ctx context.Context, userID, workspaceID string) (bool, error)
}

// UserRepository reads and updates account plans.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	SetPlan(ctx context.Context, id string, plan UserPlan) (*User, error)
}
