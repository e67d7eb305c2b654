package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinLink/internal/interfaces/http/handlers"
	"github.com/turtacn/ClinLink/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the dependencies of the operational route tree.
type RouterConfig struct {
	HealthHandler    *handlers.HealthHandler
	MetricsCollector prometheus.MetricsCollector
	Logger           logging.Logger
	Logging          middleware.LoggingConfig
}

// NewRouter builds the chi route tree: /healthz, /readyz, /healthz/detail and
// /metrics.  Nil dependencies leave their routes unregistered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger, cfg.Logging))
	}

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
		r.Get("/healthz/detail", cfg.HealthHandler.Detailed)
	}

	// Scraped by Prometheus from inside the cluster; no auth.
	if cfg.MetricsCollector != nil {
		r.Handle("/metrics", cfg.MetricsCollector.Handler())
	}

	return r
}

//Personal.AI order the ending
