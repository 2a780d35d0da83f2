package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"licensehub/internal/services"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	health *services.HealthService
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(health *services.HealthService) *HealthHandler {
	return &HealthHandler{health: health}
}

// Routes returns the health router. These endpoints are
// unauthenticated.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/health/db", h.HealthDB)
	r.Get("/health/cache", h.HealthCache)
	r.Get("/ready", h.Ready)
	return r
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Report(r.Context())
	if report.Status != "ok" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, report)
}

// HealthDB handles GET /health/db.
func (h *HealthHandler) HealthDB(w http.ResponseWriter, r *http.Request) {
	if err := h.health.CheckDB(r.Context()); err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "down", "error": err.Error()})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// HealthCache handles GET /health/cache.
func (h *HealthHandler) HealthCache(w http.ResponseWriter, r *http.Request) {
	if err := h.health.CheckCache(r.Context()); err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "down", "error": err.Error()})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// Ready handles GET /ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.health.Ready(r.Context()) {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "not ready"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}
