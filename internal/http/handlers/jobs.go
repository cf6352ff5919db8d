package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"genqueue/internal/domain"
)

const (
	defaultJobListLimit = 20
	maxJobListLimit     = 100
)

type jobView struct {
	ID            string           `json:"id"`
	WorkspaceID   string           `json:"workspace_id"`
	CreatorID     string           `json:"creator_id"`
	BoardID       string           `json:"board_id,omitempty"`
	Model         string           `json:"model"`
	Prompt        string           `json:"prompt"`
	InputRefs     []string         `json:"input_refs,omitempty"`
	Priority      int              `json:"priority"`
	Cost          float64          `json:"cost"`
	Status        domain.JobStatus `json:"status"`
	Provider      string           `json:"provider,omitempty"`
	ProviderTask  string           `json:"provider_task_id,omitempty"`
	ResultAssetID string           `json:"result_asset_id,omitempty"`
	ResultURL     string           `json:"result_url,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func toJobView(j domain.Job) jobView {
	return jobView{
		ID:            j.ID,
		WorkspaceID:   j.WorkspaceID,
		CreatorID:     j.CreatorID,
		BoardID:       j.BoardID,
		Model:         j.Model,
		Prompt:        j.Prompt,
		InputRefs:     j.InputRefs,
		Priority:      j.Priority,
		Cost:          j.Cost,
		Status:        j.Status,
		Provider:      j.Provider,
		ProviderTask:  j.ProviderTask,
		ResultAssetID: j.ResultAssetID,
		ResultURL:     j.ResultURL,
		ErrorMessage:  j.ErrorMessage,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

// JobStatus returns one job to a member of its workspace.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	caller := a.currentCaller(r)
	if caller.IsZero() {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := a.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.logger.Error().Err(err).Str("job_id", jobID).Msg("load job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	ok, err := a.workspaces.IsMember(r.Context(), caller.UserID, job.WorkspaceID)
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", jobID).Msg("check membership")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, toJobView(*job))
}

// WorkspaceJobs lists a workspace's jobs, newest first.
func (a *App) WorkspaceJobs(w http.ResponseWriter, r *http.Request) {
	caller := a.currentCaller(r)
	if caller.IsZero() {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	workspaceID := chi.URLParam(r, "workspace_id")
	ok, err := a.workspaces.IsMember(r.Context(), caller.UserID, workspaceID)
	if err != nil {
		a.logger.Error().Err(err).Str("workspace_id", workspaceID).Msg("check membership")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "workspace not found")
		return
	}
	limit := defaultJobListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.error(w, http.StatusBadRequest, "invalid_input", "limit must be a positive integer")
			return
		}
		limit = min(n, maxJobListLimit)
	}
	jobs, err := a.jobs.ListByWorkspace(r.Context(), workspaceID, limit)
	if err != nil {
		a.logger.Error().Err(err).Str("workspace_id", workspaceID).Msg("list jobs")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobView(j))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": out})
}
