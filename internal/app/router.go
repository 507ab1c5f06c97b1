package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/unimaster/unimaster/internal/auth"
	"github.com/unimaster/unimaster/internal/authz"
	"github.com/unimaster/unimaster/internal/courses"
	"github.com/unimaster/unimaster/internal/materials"
	"github.com/unimaster/unimaster/internal/observability"
	"github.com/unimaster/unimaster/internal/requests"
	"github.com/unimaster/unimaster/internal/shared"
	"github.com/unimaster/unimaster/internal/universities"
	"github.com/unimaster/unimaster/internal/users"
	"github.com/unimaster/unimaster/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Authz          authz.Middleware

	AuthHandler         *auth.Handler
	UniversitiesHandler *universities.Handler
	CoursesHandler      *courses.Handler
	MaterialsHandler    *materials.Handler
	RequestsHandler     *requests.Handler
	UsersHandler        *users.Handler
	OverviewHandler     *OverviewHandler
	JobHandler          *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Unimaster defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.Authz.WithActor)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Route("/universities", func(r chi.Router) {
		params.UniversitiesHandler.MountRoutes(r)
		params.CoursesHandler.MountUniversityCourses(r)
	})
	r.Route("/courses", params.CoursesHandler.MountRoutes)
	r.Route("/years", params.MaterialsHandler.MountYearRoutes)
	r.Route("/materials", params.MaterialsHandler.MountRoutes)

	r.Route("/requests", params.RequestsHandler.MountSelfRoutes)

	r.Route("/admin", func(r chi.Router) {
		r.Route("/requests", params.RequestsHandler.MountAdminRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.With(params.Authz.Require(authz.PermManageUsers)).
			Method(http.MethodGet, "/overview", params.OverviewHandler)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
