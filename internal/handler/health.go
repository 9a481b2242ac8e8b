package handler

import (
	"net/http"

	"github.com/taskpilot-ai/taskpilot/internal/events"
	"github.com/taskpilot-ai/taskpilot/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store     *store.Store
	publisher *events.Publisher
}

// NewHealthHandler creates a new health handler. publisher may be nil when
// event publishing is disabled.
func NewHealthHandler(st *store.Store, publisher *events.Publisher) *HealthHandler {
	return &HealthHandler{
		store:     st,
		publisher: publisher,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}

	if h.publisher != nil && !h.publisher.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
