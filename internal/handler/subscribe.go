package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/capitalize-ai/realtime-gateway/internal/middleware"
	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/internal/realtime"
	"github.com/capitalize-ai/realtime-gateway/pkg/logger"
	"github.com/capitalize-ai/realtime-gateway/pkg/metrics"
)

// SubscribeHandler owns the subscriber side: it turns one stream request
// into a registered connection, keeps it alive with heartbeats, and
// detaches it on disconnect. Filter changes are realized client-side as
// close-and-reopen, never as in-place mutation.
type SubscribeHandler struct {
	registry          *realtime.Registry
	heartbeatInterval time.Duration
	logger            *logger.Logger
}

// NewSubscribeHandler creates a subscribe handler.
func NewSubscribeHandler(registry *realtime.Registry, heartbeatInterval time.Duration, log *logger.Logger) *SubscribeHandler {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	return &SubscribeHandler{
		registry:          registry,
		heartbeatInterval: heartbeatInterval,
		logger:            log,
	}
}

// Stream handles GET /api/v1/stream?tenant_id=&inbox_ids=1,2&conversation_id=
// The response is a persistent SSE stream: a connected ack first, then
// heartbeats and envelopes, each tagged with its event type.
func (h *SubscribeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID := r.URL.Query().Get("tenant_id")
	if err := middleware.ValidateTenantID(tenantID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if claim := middleware.GetTenantID(ctx); claim != "" && claim != tenantID {
		writeError(w, http.StatusForbidden, "tenant_id does not match token")
		return
	}

	inboxIDs, err := middleware.ParseInboxIDs(r.URL.Query().Get("inbox_ids"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conversationID, err := middleware.ParseConversationID(r.URL.Query().Get("conversation_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	interest := model.Interest{
		TenantID:              tenantID,
		InboxIDs:              inboxIDs,
		FocusedConversationID: conversationID,
	}

	conn := h.registry.Attach(interest)
	defer h.registry.Detach(conn.ID)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	// First frame: the ack confirming the assigned connection id and the
	// derived subscription.
	ack := &model.ConnectedAck{
		ConnectionID:   conn.ID,
		TenantID:       tenantID,
		InboxIDs:       interest.InboxIDList(),
		ConversationID: conversationID,
	}
	if err := sendSSEEvent(w, flusher, model.EventTypeConnected, ack); err != nil {
		h.logger.Warn("failed to send connected ack", "connection_id", conn.ID, "error", err)
		return
	}

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client went away. The deferred detach tolerates racing with a
			// push-failure detach from the router.
			h.logger.Info("subscriber disconnected", "connection_id", conn.ID, "tenant_id", tenantID)
			return

		case <-conn.Done():
			// Detached elsewhere (push failure).
			h.logger.Info("connection closed by router", "connection_id", conn.ID, "tenant_id", tenantID)
			return

		case msg := <-conn.Receive():
			if err := sendSSERaw(w, flusher, msg.Event, msg.Data); err != nil {
				h.logger.Warn("subscriber write failed", "connection_id", conn.ID, "error", err)
				return
			}

		case <-heartbeat.C:
			err := sendSSEEvent(w, flusher, model.EventTypeHeartbeat, &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
			if err != nil {
				h.logger.Warn("heartbeat write failed", "connection_id", conn.ID, "error", err)
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event model.EventType, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return sendSSERaw(w, flusher, event, jsonData)
}

func sendSSERaw(w http.ResponseWriter, flusher http.Flusher, event model.EventType, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
