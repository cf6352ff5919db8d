package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"genqueue/internal/domain"
	"genqueue/internal/infra"
	"genqueue/internal/providers"
)

// Ack statuses.
const (
	AckIgnored        = "ignored"
	AckAlreadySettled = "already_settled"
	AckPending        = "pending"
	AckError          = "error"
)

// Ack is the acknowledgement returned to the provider for every callback.
type Ack struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

// Reconciler applies provider callbacks to jobs. It never fails: whatever
// happens, the provider gets an acknowledgement so it does not retry.
type Reconciler struct {
	jobs     domain.JobRepository
	registry *providers.Registry
	settler  *Settler
	logger   infra.Logger
}

func NewReconciler(jobs domain.JobRepository, registry *providers.Registry, settler *Settler, logger infra.Logger) *Reconciler {
	return &Reconciler{
		jobs:     jobs,
		registry: registry,
		settler:  settler,
		logger:   infra.Component(logger, "reconciler"),
	}
}

// HandleBody parses a raw callback body for provider and applies it.
func (r *Reconciler) HandleBody(ctx context.Context, provider string, body []byte) Ack {
	handle, outcome, err := r.parse(provider, body)
	if err != nil {
		r.logger.Warn().Err(err).Str("provider", provider).Msg("callback body rejected")
		return Ack{Received: true, Status: AckIgnored}
	}
	return r.Handle(ctx, provider, handle, outcome)
}

// Handle applies outcome to the job linked to handle.
func (r *Reconciler) Handle(ctx context.Context, provider, handle string, outcome providers.Outcome) Ack {
	log := r.logger.With().Str("provider", provider).Str("task_id", handle).Logger()
	job, err := r.jobs.GetByProviderTask(ctx, handle)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Info().Msg("callback for unknown task ignored")
			return Ack{Received: true, Status: AckIgnored}
		}
		log.Error().Err(err).Msg("callback lookup failed")
		return Ack{Received: true, Status: AckError}
	}
	log = log.With().Str("job_id", job.ID).Logger()
	if provider != "" && job.Provider != "" && !strings.EqualFold(job.Provider, provider) {
		log.Warn().Str("job_provider", job.Provider).Msg("callback provider mismatch ignored")
		return Ack{Received: true, Status: AckIgnored}
	}
	if job.Status.Terminal() {
		log.Info().Str("status", string(job.Status)).Msg("duplicate callback for settled job")
		return Ack{Received: true, Status: AckAlreadySettled}
	}
	if !outcome.Terminal() {
		return Ack{Received: true, Status: AckPending}
	}

	settled, err := r.settler.Settle(ctx, job.ID, outcome)
	if err != nil {
		log.Error().Err(err).Msg("callback settle failed")
		return Ack{Received: true, Status: AckError}
	}
	if !settled.Applied && settled.Status.Terminal() {
		return Ack{Received: true, Status: AckAlreadySettled}
	}
	return Ack{Received: true, Status: string(settled.Status)}
}

// genericCallback is the body accepted from providers without a parser.
type genericCallback struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	ResultURL string `json:"resultUrl"`
	Error     string `json:"error"`
}

func (r *Reconciler) parse(provider string, body []byte) (string, providers.Outcome, error) {
	if r.registry != nil {
		if adapter, ok := r.registry.ByName(provider); ok {
			if parser, ok := adapter.(providers.CallbackParser); ok {
				return parser.ParseCallback(body)
			}
		}
	}
	return ParseGenericCallback(body)
}

// ParseGenericCallback decodes {"taskId","status","resultUrl","error"}.
func ParseGenericCallback(body []byte) (string, providers.Outcome, error) {
	var cb genericCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return "", providers.Outcome{}, fmt.Errorf("decode callback: %w", err)
	}
	if strings.TrimSpace(cb.TaskID) == "" {
		return "", providers.Outcome{}, errors.New("callback carried no taskId")
	}
	switch strings.ToLower(cb.Status) {
	case "success", "succeeded":
		if cb.ResultURL == "" {
			return cb.TaskID, providers.Failed("provider reported success without a result"), nil
		}
		return cb.TaskID, providers.Succeeded(cb.ResultURL), nil
	case "failed", "fail", "error":
		return cb.TaskID, providers.Failed(cb.Error), nil
	case "processing", "pending", "":
		return cb.TaskID, providers.Pending(), nil
	default:
		return "", providers.Outcome{}, fmt.Errorf("unknown callback status %q", cb.Status)
	}
}
