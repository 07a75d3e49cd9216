// Package rest serves the local observability endpoints.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/italolelis/seedr_tray/internal/logctx"
	"github.com/italolelis/seedr_tray/internal/telemetry"
)

// MetricsHandler exposes Prometheus metrics and a health check.
type MetricsHandler struct {
	telemetry *telemetry.Telemetry
}

func NewMetricsHandler(t *telemetry.Telemetry) *MetricsHandler {
	return &MetricsHandler{telemetry: t}
}

func (h *MetricsHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.NewHTTPMiddleware(h.telemetry).Middleware)

	r.Get("/healthz", h.HandleHealth)
	r.Handle("/metrics", h.metrics())

	return r
}

// HandleHealth reports that the process is up.
func (h *MetricsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("ok")); err != nil {
		logctx.LoggerFromContext(r.Context()).Debug("failed to write health response", "err", err)
	}
}

func (h *MetricsHandler) metrics() http.Handler {
	if h.telemetry == nil {
		return http.NotFoundHandler()
	}

	return h.telemetry.Handler()
}
