package handler

import (
	"net/http"

	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/internal/realtime"
)

// DiagnosticsHandler exposes connection counts and live connection ages for
// operational visibility. Not part of the functional contract.
type DiagnosticsHandler struct {
	registry *realtime.Registry
}

// NewDiagnosticsHandler creates a diagnostics handler.
func NewDiagnosticsHandler(registry *realtime.Registry) *DiagnosticsHandler {
	return &DiagnosticsHandler{registry: registry}
}

// Connections handles GET /api/v1/diagnostics/connections
func (h *DiagnosticsHandler) Connections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.DiagnosticsResponse{
		Stats:       h.registry.Stats(),
		Connections: h.registry.Connections(),
	})
}
