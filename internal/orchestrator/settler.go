package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"genqueue/internal/domain"
	"genqueue/internal/infra"
	"genqueue/internal/providers"
)

// Settlement reports what settling did. Applied is false when the job was
// already terminal or the outcome was still pending; Status is the job's
// status afterwards.
type Settlement struct {
	Applied bool
	Status  domain.JobStatus
}

// Settler moves jobs into terminal states. All writes are guarded so that
// racing resolutions of the same task apply at most once.
type Settler struct {
	jobs      domain.JobRepository
	persister *Persister
	logger    infra.Logger
}

func NewSettler(jobs domain.JobRepository, persister *Persister, logger infra.Logger) *Settler {
	return &Settler{jobs: jobs, persister: persister, logger: infra.Component(logger, "settler")}
}

// Settle applies a provider outcome to jobID.
func (s *Settler) Settle(ctx context.Context, jobID string, outcome providers.Outcome) (Settlement, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return Settlement{}, err
	}
	if job.Status.Terminal() {
		return Settlement{Status: job.Status}, nil
	}

	switch outcome.State {
	case providers.StateSucceeded:
		return s.succeed(ctx, job, outcome)
	case providers.StateFailed:
		return s.Fail(ctx, jobID, &domain.ProviderFailure{Message: outcome.Message})
	default:
		return Settlement{Status: job.Status}, nil
	}
}

func (s *Settler) succeed(ctx context.Context, job *domain.Job, outcome providers.Outcome) (Settlement, error) {
	if job.Status != domain.JobStatusProcessing {
		return Settlement{Status: job.Status}, nil
	}
	asset, err := s.persister.Persist(ctx, *job, outcome)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("result persistence failed")
		return s.Fail(ctx, job.ID, err)
	}
	applied, err := s.jobs.SettleSuccess(ctx, job.ID, asset)
	if err != nil {
		return Settlement{}, fmt.Errorf("settle success %s: %w", job.ID, err)
	}
	if !applied {
		return s.current(ctx, job.ID)
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("workspace_id", job.WorkspaceID).
		Str("asset_id", asset.ID).
		Msg("job succeeded")
	return Settlement{Applied: true, Status: domain.JobStatusSuccess}, nil
}

// Fail moves jobID to failed with a message derived from cause. Provider
// messages are stored verbatim.
func (s *Settler) Fail(ctx context.Context, jobID string, cause error) (Settlement, error) {
	msg := domain.FailureMessage(cause)
	applied, err := s.jobs.Patch(ctx, jobID, domain.FailedPatch(msg))
	if err != nil {
		return Settlement{}, fmt.Errorf("fail job %s: %w", jobID, err)
	}
	if !applied {
		return s.current(ctx, jobID)
	}
	s.logger.Info().
		Str("job_id", jobID).
		Str("error_message", msg).
		Bool("provider_reported", errors.Is(cause, domain.ErrProviderReportedFailure)).
		Msg("job failed")
	return Settlement{Applied: true, Status: domain.JobStatusFailed}, nil
}

func (s *Settler) current(ctx context.Context, jobID string) (Settlement, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return Settlement{}, err
	}
	return Settlement{Status: job.Status}, nil
}
