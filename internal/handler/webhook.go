package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/realtime-gateway/internal/ingest"
	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/internal/realtime"
	"github.com/capitalize-ai/realtime-gateway/pkg/logger"
)

// WebhookHandler ingests platform webhook deliveries: normalize, broadcast,
// acknowledge. It talks only to the normalizer and the router; the
// subscriber side never appears on this path.
type WebhookHandler struct {
	normalizer *ingest.Normalizer
	router     *realtime.Router
	logger     *logger.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(normalizer *ingest.Normalizer, router *realtime.Router, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		normalizer: normalizer,
		router:     router,
		logger:     log,
	}
}

// Receive handles POST /webhooks/platform. Unrecognized event kinds are
// acknowledged with 200 so the platform does not retry deliveries we chose
// not to act on; only structurally invalid input earns an error status.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload model.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("webhook body is not valid JSON", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	env, err := h.normalizer.Normalize(&payload)
	if err != nil {
		if errors.Is(err, ingest.ErrMissingAccount) || errors.Is(err, ingest.ErrMissingConversation) {
			h.logger.Warn("webhook payload structurally invalid", "event", payload.Event, "error", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("webhook normalization failed", "event", payload.Event, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := model.WebhookResponse{Received: true, Event: payload.Event}
	if env != nil {
		h.router.Dispatch(env)
		resp.Event = string(env.Type)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Verify handles GET /webhooks/platform, echoing the platform's challenge
// parameter per its endpoint-verification convention.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("challenge")
	if challenge == "" {
		writeError(w, http.StatusBadRequest, "missing challenge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
}
