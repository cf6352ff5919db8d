package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"genqueue/internal/domain"
	"genqueue/internal/infra"
	"genqueue/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on top of the marker-tagged
// statements in sqlinline.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new job record. The caller assigns the id.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("create job: id is required")
	}
	if job.BoardID != "" && !isUUID(job.BoardID) {
		return domain.InvalidInput("board_id %q is not a UUID", job.BoardID)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertJob,
		job.ID,
		job.WorkspaceID,
		job.CreatorID,
		job.BoardID,
		job.Model,
		job.Prompt,
		job.InputRefs,
		job.Priority,
		job.Cost,
		string(job.Status),
	)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Patch applies a guarded partial update.
func (r *JobRepositoryPG) Patch(ctx context.Context, jobID string, p domain.JobPatch) (bool, error) {
	if !isUUID(jobID) {
		return false, nil
	}
	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}
	expect := make([]string, 0, len(p.ExpectFrom))
	for _, s := range p.ExpectFrom {
		expect = append(expect, string(s))
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QPatchJob,
		jobID,
		status,
		p.Provider,
		p.ProviderTask,
		p.ResultAssetID,
		p.ResultURL,
		p.ErrorMessage,
		expect,
	)
	if err != nil {
		return false, fmt.Errorf("patch job %s: %w", jobID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if !isUUID(jobID) {
		return nil, domain.ErrNotFound
	}
	return r.one(ctx, sqlinline.QSelectJobByID, jobID)
}

// GetByProviderTask fetches the job that owns a provider task handle.
func (r *JobRepositoryPG) GetByProviderTask(ctx context.Context, handle string) (*domain.Job, error) {
	return r.one(ctx, sqlinline.QSelectJobByProviderTask, handle)
}

// ListByWorkspace returns the newest jobs of a workspace first.
func (r *JobRepositoryPG) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]domain.Job, error) {
	if !isUUID(workspaceID) {
		return nil, nil
	}
	return r.many(ctx, sqlinline.QListJobsByWorkspace, workspaceID, limit)
}

// ListStale returns jobs sitting in status since before olderThan, oldest first.
func (r *JobRepositoryPG) ListStale(ctx context.Context, status domain.JobStatus, olderThan time.Time, limit int) ([]domain.Job, error) {
	return r.many(ctx, sqlinline.QListStaleJobs, string(status), olderThan, limit)
}

// MarkEnqueued stamps enqueued_at on the queued jobs in ids.
func (r *JobRepositoryPG) MarkEnqueued(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QMarkJobsEnqueued, ids); err != nil {
		return fmt.Errorf("mark jobs enqueued: %w", err)
	}
	return nil
}

// SettleSuccess flips processing -> success and records the asset atomically.
func (r *JobRepositoryPG) SettleSuccess(ctx context.Context, jobID string, asset *domain.Asset) (bool, error) {
	if asset == nil || asset.ID == "" {
		return false, fmt.Errorf("settle job %s: asset id is required", jobID)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QSettleJobSuccess,
		jobID,
		asset.ID,
		asset.StorageKey,
		asset.ContentType,
		asset.URL,
		asset.Bytes,
	)
	var inserted int64
	if err := row.Scan(&inserted); err != nil {
		return false, fmt.Errorf("settle job %s: %w", jobID, err)
	}
	return inserted > 0, nil
}

func (r *JobRepositoryPG) one(ctx context.Context, query string, args ...any) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, query, args...)
	job, err := scanJob(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepositoryPG) many(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var status string
	var enqueuedAt *time.Time
	if err := row.Scan(
		&job.ID,
		&job.WorkspaceID,
		&job.CreatorID,
		&job.BoardID,
		&job.Model,
		&job.Prompt,
		&job.InputRefs,
		&job.Priority,
		&job.Cost,
		&status,
		&job.Provider,
		&job.ProviderTask,
		&job.ResultAssetID,
		&job.ResultURL,
		&job.ErrorMessage,
		&enqueuedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if enqueuedAt != nil {
		job.EnqueuedAt = *enqueuedAt
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
