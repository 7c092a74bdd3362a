package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/sss-portal/internal/obs"
	"github.com/frahmantamala/sss-portal/internal/profile"
	"github.com/frahmantamala/sss-portal/internal/session"
	"github.com/frahmantamala/sss-portal/internal/transport/middleware"
	"github.com/frahmantamala/sss-portal/internal/transport/swagger"
)

// Routes bundles what the HTTP surface needs.
type Routes struct {
	DB             *sql.DB
	Sessions       *session.Registry
	SessionHandler *session.Handler
	ProfileHandler *profile.Handler
	Metrics        *obs.Metrics
	MetricsPath    string
	AllowedOrigins []string
	Logger         *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, routes Routes) {
	healthHandler := NewHealthHandler(routes.DB)
	authz := middleware.NewAuthorization(routes.Logger)

	// Apply global middleware
	router.Use(middleware.CORS(routes.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.WithLogger(routes.Logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(routes.Logger))
	router.Use(middleware.RecoveryMiddleware(routes.Logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	if routes.Metrics != nil {
		path := routes.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, routes.Metrics.Handler())
	}

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if routes.SessionHandler != nil {
			sh := routes.SessionHandler
			r.Route("/auth", func(ar chi.Router) {
				ar.Post("/login", sh.Login)
				ar.Post("/logout", sh.Logout)
			})
			r.Get("/session", sh.Session)
			r.Get("/navigate", sh.Navigate)

			r.Group(func(sr chi.Router) {
				sr.Use(middleware.ClientSession(sh.Registry))
				sr.Use(authz.RequireSignedIn())

				sr.Get("/navigation", sh.Navigation)
				sr.Post("/activity", sh.Activity)
			})
		}

		if routes.ProfileHandler != nil && routes.Sessions != nil {
			ph := routes.ProfileHandler
			// Administrator routes
			r.Group(func(pr chi.Router) {
				pr.Use(middleware.ClientSession(routes.Sessions))
				pr.Use(authz.RequireAdmin())

				pr.Get("/admin/dashboard", ph.Dashboard)
				pr.Route("/users", func(ur chi.Router) {
					ur.Get("/", ph.ListUsers)
					ur.Post("/", ph.CreateUser)
					ur.Patch("/{uid}", ph.UpdateUser)
				})
			})
		}
	})
}
