package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinsim/clinsim/internal/http/handlers"
	httpmiddleware "github.com/clinsim/clinsim/internal/http/middleware"
	"github.com/clinsim/clinsim/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	SessionHandler *handlers.SessionHandler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.SessionHandler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/sessions", func(api chi.Router) {
		api.Post("/", cfg.SessionHandler.CreateSession)
		api.Route("/{sessionID}", func(s chi.Router) {
			s.Post("/query", cfg.SessionHandler.Query)
			s.Post("/diagnosis", cfg.SessionHandler.Diagnosis)
			s.Get("/summary", cfg.SessionHandler.Summary)
			s.Get("/discoveries", cfg.SessionHandler.Discoveries)
			s.Delete("/", cfg.SessionHandler.DeleteSession)
		})
	})

	return r
}
