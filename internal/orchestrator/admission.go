// Package orchestrator runs generation jobs from admission to a terminal
// state: it creates and enqueues jobs, dispatches them to providers, resolves
// provider tasks by polling or callback and settles the outcome.
package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"genqueue/internal/domain"
	"genqueue/internal/exchange"
	"genqueue/internal/infra"
	"genqueue/internal/providers"
	"genqueue/internal/queue"
)

// MaxVariations caps how many jobs one admission may create.
const MaxVariations = 5

const defaultMaxInlineBytes = 10 << 20

// AdmitRequest is a validated generation request.
type AdmitRequest struct {
	WorkspaceID string
	BoardID     string
	Model       string
	Prompt      string
	Variations  int
	// Inputs are reference image URLs or data: URIs.
	Inputs   []string
	Priority *int
	Cost     *float64
}

// AdmitResult lists the created job ids in creation order.
type AdmitResult struct {
	JobIDs   []string
	Tier     domain.Tier
	Priority int
}

// AdmitterDeps wires an Admitter.
type AdmitterDeps struct {
	Jobs           domain.JobRepository
	Workspaces     domain.WorkspaceRepository
	Queue          queue.Queue
	Notifier       queue.Notifier
	Exchange       exchange.Store
	Registry       *providers.Registry
	PublicBaseURL  string
	MaxInlineBytes int
	Logger         infra.Logger
}

// Admitter turns a generation request into queued jobs.
type Admitter struct {
	jobs           domain.JobRepository
	workspaces     domain.WorkspaceRepository
	queue          queue.Queue
	notifier       queue.Notifier
	exchange       exchange.Store
	registry       *providers.Registry
	publicBaseURL  string
	maxInlineBytes int
	logger         infra.Logger
	newID          func() string
	now            func() time.Time
}

func NewAdmitter(deps AdmitterDeps) *Admitter {
	maxInline := deps.MaxInlineBytes
	if maxInline <= 0 {
		maxInline = defaultMaxInlineBytes
	}
	return &Admitter{
		jobs:           deps.Jobs,
		workspaces:     deps.Workspaces,
		queue:          deps.Queue,
		notifier:       deps.Notifier,
		exchange:       deps.Exchange,
		registry:       deps.Registry,
		publicBaseURL:  deps.PublicBaseURL,
		maxInlineBytes: maxInline,
		logger:         infra.Component(deps.Logger, "admission"),
		newID:          uuid.NewString,
		now:            time.Now,
	}
}

// Admit creates one queued job per variation and enqueues them as a single
// batch in the caller's tier. If enqueueing fails the jobs stay queued in the
// store and the error is returned; nothing is retried here.
func (a *Admitter) Admit(ctx context.Context, caller domain.Caller, req AdmitRequest) (AdmitResult, error) {
	if caller.IsZero() {
		return AdmitResult{}, domain.ErrUnauthorized
	}
	workspaceID, err := a.resolveWorkspace(ctx, caller, req.WorkspaceID)
	if err != nil {
		return AdmitResult{}, err
	}

	prompt := norm.NFC.String(strings.TrimSpace(req.Prompt))
	if prompt == "" {
		return AdmitResult{}, domain.InvalidInput("prompt is required")
	}
	model, _, err := a.registry.Route(req.Model)
	if err != nil {
		return AdmitResult{}, domain.InvalidInput("unsupported model %q", req.Model)
	}
	n, err := clampVariations(req.Variations)
	if err != nil {
		return AdmitResult{}, err
	}

	tier, priority := domain.TierForPlan(caller.Plan)
	if req.Priority != nil {
		tier, priority = domain.TierForOverride(caller.Plan, *req.Priority)
	}
	cost := 1.0
	if req.Cost != nil {
		if *req.Cost < 0 {
			return AdmitResult{}, domain.InvalidInput("cost must not be negative")
		}
		cost = *req.Cost
	}

	inputs, err := a.stageInputs(ctx, req.Inputs)
	if err != nil {
		return AdmitResult{}, err
	}
	if len(inputs) == 0 && a.registry.RequiresInput(model) {
		return AdmitResult{}, domain.InvalidInput("model %q needs an input image", model)
	}

	now := a.now()
	ids := make([]string, 0, n)
	payloads := make([]domain.QueuedPayload, 0, n)
	for i := 0; i < n; i++ {
		job := &domain.Job{
			ID:          a.newID(),
			WorkspaceID: workspaceID,
			CreatorID:   caller.UserID,
			BoardID:     req.BoardID,
			Model:       model,
			Prompt:      prompt,
			InputRefs:   inputs,
			Priority:    priority,
			Cost:        cost,
			Status:      domain.JobStatusQueued,
		}
		if err := a.jobs.Create(ctx, job); err != nil {
			return AdmitResult{}, fmt.Errorf("create job %d of %d: %w", i+1, n, err)
		}
		ids = append(ids, job.ID)
		payloads = append(payloads, domain.PayloadFor(*job, now))
	}

	if err := a.queue.Enqueue(ctx, tier, payloads...); err != nil {
		a.logger.Error().Err(err).
			Str("workspace_id", workspaceID).
			Strs("job_ids", ids).
			Str("tier", string(tier)).
			Msg("enqueue failed; jobs left queued")
		return AdmitResult{}, fmt.Errorf("%w: %v", domain.ErrEnqueueFailed, err)
	}
	if err := a.jobs.MarkEnqueued(ctx, ids); err != nil {
		a.logger.Error().Err(err).Strs("job_ids", ids).Msg("jobs enqueued but not marked")
	}
	if a.notifier != nil {
		if err := a.notifier.Notify(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("worker wake-up failed")
		}
	}

	a.logger.Info().
		Str("workspace_id", workspaceID).
		Str("user_id", caller.UserID).
		Str("model", model).
		Str("tier", string(tier)).
		Int("jobs", n).
		Msg("generation admitted")
	return AdmitResult{JobIDs: ids, Tier: tier, Priority: priority}, nil
}

func (a *Admitter) resolveWorkspace(ctx context.Context, caller domain.Caller, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		ok, err := a.workspaces.IsMember(ctx, caller.UserID, requested)
		if err != nil {
			return "", err
		}
		if ok {
			return requested, nil
		}
	}
	if caller.WorkspaceID != "" && caller.WorkspaceID != requested {
		ok, err := a.workspaces.IsMember(ctx, caller.UserID, caller.WorkspaceID)
		if err != nil {
			return "", err
		}
		if ok {
			return caller.WorkspaceID, nil
		}
	}
	id, err := a.workspaces.DefaultWorkspace(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: no workspace for user", domain.ErrNotFound)
		}
		return "", err
	}
	return id, nil
}

func clampVariations(n int) (int, error) {
	switch {
	case n < 0:
		return 0, domain.InvalidInput("variations must not be negative")
	case n == 0:
		return 1, nil
	case n > MaxVariations:
		return MaxVariations, nil
	}
	return n, nil
}

// stageInputs replaces data: URIs with exchange URLs so providers can fetch
// them. Other inputs must be absolute http(s) URLs.
func (a *Admitter) stageInputs(ctx context.Context, inputs []string) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		if strings.HasPrefix(in, "data:") {
			data, contentType, err := decodeDataURI(in)
			if err != nil {
				return nil, domain.InvalidInput("input image: %v", err)
			}
			if len(data) > a.maxInlineBytes {
				return nil, domain.InvalidInput("input image exceeds %d bytes", a.maxInlineBytes)
			}
			if a.exchange == nil {
				return nil, domain.InvalidInput("inline input images are not accepted")
			}
			token, err := a.exchange.Put(ctx, data, contentType)
			if err != nil {
				return nil, fmt.Errorf("stage input image: %w", err)
			}
			out = append(out, exchange.URL(a.publicBaseURL, token))
			continue
		}
		u, err := url.Parse(in)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, domain.InvalidInput("input %q is not an http(s) URL", in)
		}
		out = append(out, u.String())
	}
	return out, nil
}

// decodeDataURI parses data:[<mediatype>][;base64],<data>.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("malformed data URI")
	}
	isBase64 := false
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		isBase64 = true
		meta = meta[:len(meta)-len(";base64")]
	}
	contentType := strings.TrimSpace(meta)
	if contentType == "" {
		contentType = "text/plain;charset=US-ASCII"
	}
	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("decode data URI: %w", err)
		}
		return []byte(decoded), contentType, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("decode data URI: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty data URI")
	}
	return data, contentType, nil
}
