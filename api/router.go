// Package api exposes the optics service over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterConfig holds the HTTP edge settings
type RouterConfig struct {
	// AuthToken protects /connect and /optics; empty disables auth
	AuthToken string

	RequestLogging bool

	FrontendOrigin          string
	AllowRequestCredentials bool
}

// NewRouter creates and configures the API router
func NewRouter(service OpticsService, cfg RouterConfig, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewHandler(service, logger)
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Recovery(logger))
	r.Use(RequestLogger(logger, cfg.RequestLogging))
	r.Use(SecurityHeaders)
	r.Use(CORS(cfg.FrontendOrigin, cfg.AllowRequestCredentials))

	// Public routes
	r.Get("/health", h.Health)
	r.Get("/openapi.json", h.OpenAPI)

	// OLT routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken, logger))
		r.Post("/connect", h.Connect)
		r.Get("/optics", h.Optics)
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
