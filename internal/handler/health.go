package handler

import (
	"context"
	"net/http"

	"github.com/ggufchat/chat-engine/internal/bus"
)

// Pinger reports whether the remote history store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	nats   *bus.NATS
	remote Pinger
}

// NewHealthHandler creates a new health handler. Both dependencies are
// optional; without them, readiness reduces to liveness.
func NewHealthHandler(nats *bus.NATS, remote Pinger) *HealthHandler {
	return &HealthHandler{nats: nats, remote: remote}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.nats != nil && !h.nats.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}
	if h.remote != nil {
		if err := h.remote.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "history store unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
