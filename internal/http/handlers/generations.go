package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"genqueue/internal/domain"
	"genqueue/internal/orchestrator"
)

const maxGenerationBody = 32 << 20

type generationRequest struct {
	WorkspaceID string   `json:"workspace_id" validate:"omitempty,max=64"`
	BoardID     string   `json:"board_id" validate:"omitempty,max=64"`
	Model       string   `json:"model" validate:"omitempty,max=128"`
	Prompt      string   `json:"prompt" validate:"required,max=4000"`
	Variations  int      `json:"variations"`
	Inputs      []string `json:"inputs" validate:"max=4,dive,required"`
	Priority    *int     `json:"priority" validate:"omitempty,gte=0,lte=100"`
	Cost        *float64 `json:"cost" validate:"omitempty,gte=0"`
}

type generationResponse struct {
	JobIDs []string    `json:"job_ids"`
	Status string      `json:"status"`
	Tier   domain.Tier `json:"tier"`
}

// GenerationsCreate admits a generation request and answers 202 with the
// queued job ids.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	caller := a.currentCaller(r)
	if caller.IsZero() {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGenerationBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_input", "invalid payload")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_input", describeValidation(err))
		return
	}

	res, err := a.admitter.Admit(r.Context(), a.withPlan(r, caller), orchestrator.AdmitRequest{
		WorkspaceID: req.WorkspaceID,
		BoardID:     req.BoardID,
		Model:       req.Model,
		Prompt:      req.Prompt,
		Variations:  req.Variations,
		Inputs:      req.Inputs,
		Priority:    req.Priority,
		Cost:        req.Cost,
	})
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, generationResponse{
		JobIDs: res.JobIDs,
		Status: string(domain.JobStatusQueued),
		Tier:   res.Tier,
	})
}

func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrEnqueueFailed):
		a.logger.Error().Err(err).Msg("admission enqueue failed")
		a.error(w, http.StatusServiceUnavailable, "enqueue_failed", "jobs were created but could not be queued")
	default:
		a.logger.Error().Err(err).Msg("admission failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue jobs")
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid payload"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
