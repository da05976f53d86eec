package handler

import (
	"net/http"

	"github.com/capitalize-ai/realtime-gateway/internal/middleware"
	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/internal/realtime"
	"github.com/capitalize-ai/realtime-gateway/pkg/logger"
)

// PollHandler serves the fallback path for clients that cannot hold a live
// stream: everything after a known sequence, with an explicit gap signal.
type PollHandler struct {
	log    *realtime.EventLog
	logger *logger.Logger
}

// NewPollHandler creates a poll handler.
func NewPollHandler(log *realtime.EventLog, lg *logger.Logger) *PollHandler {
	return &PollHandler{
		log:    log,
		logger: lg,
	}
}

// Events handles GET /api/v1/events?after_sequence=N
func (h *PollHandler) Events(w http.ResponseWriter, r *http.Request) {
	after, err := middleware.ParseAfterSequence(r.URL.Query().Get("after_sequence"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, last, gap := h.log.Since(after)
	if entries == nil {
		entries = []model.LogEntry{}
	}

	if gap {
		h.logger.Info("poll request hit evicted range", "after_sequence", after, "last_sequence", last)
	}

	writeJSON(w, http.StatusOK, model.PollEventsResponse{
		Events:       entries,
		LastSequence: last,
		Gap:          gap,
	})
}
