package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/internal/realtime"
	"github.com/capitalize-ai/realtime-gateway/pkg/logger"
)

type sseFrame struct {
	event string
	data  string
}

// readFrame reads one SSE frame off the stream.
func readFrame(t *testing.T, scanner *bufio.Scanner) sseFrame {
	t.Helper()
	var frame sseFrame
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			frame.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			frame.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if frame.event != "" {
				return frame
			}
		}
	}
	t.Fatalf("stream ended before a frame: %v", scanner.Err())
	return frame
}

func newStreamFixture(t *testing.T, heartbeat time.Duration) (*httptest.Server, *realtime.Registry, *realtime.Router) {
	t.Helper()
	registry := realtime.NewRegistry(8, logger.NewNop())
	eventLog := realtime.NewEventLog(16)
	router := realtime.NewRouter(registry, eventLog, 20*time.Millisecond, logger.NewNop())
	h := NewSubscribeHandler(registry, heartbeat, logger.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(h.Stream))
	t.Cleanup(srv.Close)
	return srv, registry, router
}

func openStream(t *testing.T, ctx context.Context, url string) *bufio.Scanner {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewScanner(resp.Body)
}

func TestStreamConnectedAckAndDelivery(t *testing.T) {
	srv, registry, router := newStreamFixture(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanner := openStream(t, ctx, srv.URL+"?tenant_id=7&inbox_ids=3,9&conversation_id=55")

	ackFrame := readFrame(t, scanner)
	require.Equal(t, "connected", ackFrame.event)

	var ack model.ConnectedAck
	require.NoError(t, json.Unmarshal([]byte(ackFrame.data), &ack))
	assert.NotEmpty(t, ack.ConnectionID)
	assert.Equal(t, "7", ack.TenantID)
	assert.ElementsMatch(t, []int{3, 9}, ack.InboxIDs)
	assert.Equal(t, 55, ack.ConversationID)

	router.Dispatch(&model.Envelope{
		Type:           model.EventTypeMessageCreated,
		TenantID:       "7",
		InboxID:        9,
		ConversationID: 12,
	})

	frame := readFrame(t, scanner)
	assert.Equal(t, "message.created", frame.event)

	var env model.Envelope
	require.NoError(t, json.Unmarshal([]byte(frame.data), &env))
	assert.Equal(t, 9, env.InboxID)

	// Disconnect; the handler detaches the connection.
	cancel()
	require.Eventually(t, func() bool { return registry.Len() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestStreamHeartbeat(t *testing.T) {
	srv, _, _ := newStreamFixture(t, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanner := openStream(t, ctx, srv.URL+"?tenant_id=7")

	require.Equal(t, "connected", readFrame(t, scanner).event)

	frame := readFrame(t, scanner)
	require.Equal(t, "heartbeat", frame.event)

	var hb model.HeartbeatEvent
	require.NoError(t, json.Unmarshal([]byte(frame.data), &hb))
	assert.False(t, hb.Timestamp.IsZero())
}

func TestStreamRequiresTenantID(t *testing.T) {
	srv, registry, _ := newStreamFixture(t, time.Minute)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, registry.Len())
}

func TestStreamRejectsBadInboxIDs(t *testing.T) {
	srv, _, _ := newStreamFixture(t, time.Minute)

	resp, err := http.Get(srv.URL + "?tenant_id=7&inbox_ids=3,banana")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
