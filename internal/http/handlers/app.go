package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"genqueue/internal/domain"
	"genqueue/internal/exchange"
	"genqueue/internal/infra"
	"genqueue/internal/middleware"
	"genqueue/internal/orchestrator"
)

// Deps wires the handlers.
type Deps struct {
	Admitter       *orchestrator.Admitter
	Reconciler     *orchestrator.Reconciler
	Jobs           domain.JobRepository
	Workspaces     domain.WorkspaceRepository
	Users          domain.UserRepository
	Exchange       exchange.Store
	CallbackSecret string
	Logger         infra.Logger
}

// App holds what the HTTP handlers need.
type App struct {
	admitter       *orchestrator.Admitter
	reconciler     *orchestrator.Reconciler
	jobs           domain.JobRepository
	workspaces     domain.WorkspaceRepository
	users          domain.UserRepository
	exchange       exchange.Store
	callbackSecret string
	logger         infra.Logger
	validate       *validator.Validate
}

func NewApp(deps Deps) *App {
	return &App{
		admitter:       deps.Admitter,
		reconciler:     deps.Reconciler,
		jobs:           deps.Jobs,
		workspaces:     deps.Workspaces,
		users:          deps.Users,
		exchange:       deps.Exchange,
		callbackSecret: deps.CallbackSecret,
		logger:         infra.Component(deps.Logger, "http"),
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

func (a *App) currentCaller(r *http.Request) domain.Caller {
	return middleware.CallerFromContext(r.Context())
}

// withPlan fills in the caller's plan from the account when the token
// carried none. Lookup failures leave the caller on the free plan.
func (a *App) withPlan(r *http.Request, caller domain.Caller) domain.Caller {
	if caller.Plan != "" || a.users == nil {
		return caller
	}
	u, err := a.users.GetByID(r.Context(), caller.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.Warn().Err(err).Str("user_id", caller.UserID).Msg("plan lookup failed")
		}
		return caller
	}
	caller.Plan = u.Plan
	return caller
}
