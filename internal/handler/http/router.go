package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civitas/user-service/internal/service"
	"github.com/civitas/user-service/pkg/health"
	"github.com/civitas/user-service/pkg/middleware"
)

// RouterConfig carries the dependencies of NewRouter.
type RouterConfig struct {
	UserService *service.UserService
	Health      *health.Handler
	Logger      *slog.Logger

	// HTTPMetrics and MetricsHandler are optional; /metrics is only mounted
	// when MetricsHandler is set.
	HTTPMetrics    *middleware.HTTPMetrics
	MetricsHandler http.Handler

	// TokenValidator enables bearer auth on POST, PUT and DELETE when set.
	TokenValidator middleware.TokenValidator

	CORS middleware.CORSConfig
}

// NewRouter creates a chi router with all user service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogging(cfg.Logger))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware)
	}

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	userHandler := NewUserHandler(cfg.UserService, cfg.Logger)

	r.Route("/user", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequestLogger(cfg.Logger))

			r.Get("/", userHandler.List)
			r.Get("/{id}", userHandler.Get)
		})

		r.Group(func(r chi.Router) {
			if cfg.TokenValidator != nil {
				r.Use(middleware.Auth(cfg.TokenValidator))
			}
			r.Use(middleware.RequestLogger(cfg.Logger))

			r.Post("/", userHandler.Create)
			r.Put("/{id}", userHandler.Update)
			r.Delete("/{id}", userHandler.Delete)
		})
	})

	return r
}
