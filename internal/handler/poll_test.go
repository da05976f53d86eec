package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/internal/realtime"
	"github.com/capitalize-ai/realtime-gateway/pkg/logger"
)

func pollEvents(t *testing.T, h *PollHandler, query string) (*httptest.ResponseRecorder, model.PollEventsResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events"+query, nil)
	rec := httptest.NewRecorder()
	h.Events(rec, req)

	var resp model.PollEventsResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestPollEvents(t *testing.T) {
	eventLog := realtime.NewEventLog(16)
	for i := 0; i < 4; i++ {
		eventLog.Append(model.Envelope{Type: model.EventTypeMessageCreated, TenantID: "7"})
	}
	h := NewPollHandler(eventLog, logger.NewNop())

	rec, resp := pollEvents(t, h, "?after_sequence=2")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Len(t, resp.Events, 2)
	assert.Equal(t, uint64(3), resp.Events[0].Sequence)
	assert.Equal(t, uint64(4), resp.LastSequence)
	assert.False(t, resp.Gap)
}

func TestPollEventsGap(t *testing.T) {
	eventLog := realtime.NewEventLog(2)
	for i := 0; i < 5; i++ {
		eventLog.Append(model.Envelope{Type: model.EventTypeMessageCreated, TenantID: "7"})
	}
	h := NewPollHandler(eventLog, logger.NewNop())

	rec, resp := pollEvents(t, h, "?after_sequence=1")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, resp.Gap)
	assert.Len(t, resp.Events, 2)
	assert.Equal(t, uint64(5), resp.LastSequence)
}

func TestPollEventsEmptyLog(t *testing.T) {
	h := NewPollHandler(realtime.NewEventLog(16), logger.NewNop())

	rec, resp := pollEvents(t, h, "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.NotNil(t, resp.Events)
	assert.Empty(t, resp.Events)
	assert.Equal(t, uint64(0), resp.LastSequence)
	assert.False(t, resp.Gap)
}

func TestPollEventsBadCursor(t *testing.T) {
	h := NewPollHandler(realtime.NewEventLog(16), logger.NewNop())

	rec, _ := pollEvents(t, h, "?after_sequence=banana")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
