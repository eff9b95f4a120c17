package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jdores/selfserve-egressip/internal/auth"
	"github.com/jdores/selfserve-egressip/internal/pkg/httputil"
)

// RouteOptions configures SetupRoutes.
type RouteOptions struct {
	// IdentityHeader carries the access assertion. Empty uses auth.DefaultHeader.
	IdentityHeader string
	// AllowedOrigins lists browser origins for CORS. Empty disables CORS.
	AllowedOrigins []string
	// Health serves /health; nil disables the health routes.
	Health *HealthChecker
	// Metrics serves /metrics; nil disables it.
	Metrics http.Handler
}

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, opts RouteOptions) *chi.Mux {
	identityHeader := opts.IdentityHeader
	if identityHeader == "" {
		identityHeader = auth.DefaultHeader
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", identityHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Unauthenticated
	if opts.Health != nil {
		r.Get("/health", opts.Health.HandleHealth)
		r.Get("/health/live", opts.Health.HandleLiveness)
		r.Get("/health/ready", opts.Health.HandleReadiness)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// Everything else requires the asserted identity. Admin authorization is
	// enforced by the access proxy policy on /admin/*.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity(identityHeader))

		r.Get("/whoami", Whoami)
		r.Get("/api/assignment", h.GetAssignment)
		r.Post("/select", h.Select)
		r.Post("/reset", h.Reset)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/memberships", h.GetMemberships)
			r.Post("/assign", h.AdminAssign)
			r.Post("/remove", h.AdminRemove)
			r.Get("/logs", h.GetLogs)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.NotFound(w)
	})

	return r
}
