package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"genqueue/internal/http/handlers"
	"genqueue/internal/infra"
	"genqueue/internal/middleware"
)

// RouterOptions configures the cross-cutting middleware.
type RouterOptions struct {
	JWTSecret       string
	RateLimitPerMin int
	CORSOrigins     []string
	StaticDir       string
	Logger          infra.Logger
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	// Provider-facing routes stay outside bearer auth.
	r.Get("/v1/callbacks/{provider}", app.CallbackProbe)
	r.Post("/v1/callbacks/{provider}", app.ProviderCallback)
	r.Get("/v1/exchange/{token}", app.ExchangeFetch)
	r.Head("/v1/exchange/{token}", app.ExchangeFetch)

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).
			Post("/v1/generations", app.GenerationsCreate)
		r.Get("/v1/jobs/{job_id}", app.JobStatus)
		r.Get("/v1/workspaces/{workspace_id}/jobs", app.WorkspaceJobs)
	})

	return r
}
