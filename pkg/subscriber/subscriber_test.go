package subscriber

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/pkg/logger"
)

func TestBackoffScheduleDoublesToCeiling(t *testing.T) {
	policy := newBackoffPolicy(time.Second, 30*time.Second)

	var delays []time.Duration
	for i := 0; i < 7; i++ {
		delays = append(delays, policy.NextBackOff())
	}

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	assert.Equal(t, expected, delays)

	policy.Reset()
	assert.Equal(t, time.Second, policy.NextBackOff())
}

// sseServer serves one connected ack plus the given envelopes, then holds
// the stream open until the client goes away.
func sseServer(t *testing.T, envelopes ...model.Envelope) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		fmt.Fprintf(w, "event: connected\ndata: {\"connection_id\":\"conn-1\",\"tenant_id\":\"7\"}\n\n")
		flusher.Flush()

		for _, env := range envelopes {
			fmt.Fprintf(w, "event: %s\ndata: {\"type\":%q,\"tenant_id\":%q,\"inbox_id\":%d,\"conversation_id\":%d}\n\n",
				env.Type, env.Type, env.TenantID, env.InboxID, env.ConversationID)
			flusher.Flush()
		}

		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientReceivesEvents(t *testing.T) {
	srv := sseServer(t, model.Envelope{
		Type:           model.EventTypeMessageCreated,
		TenantID:       "7",
		InboxID:        3,
		ConversationID: 55,
	})

	received := make(chan model.Envelope, 1)

	c := New(Config{
		BaseURL:  srv.URL,
		TenantID: "7",
		InboxIDs: []int{3},
		Logger:   logger.NewNop(),
	})
	c.On(model.EventTypeMessageCreated, func(env model.Envelope) {
		received <- env
	})

	require.NoError(t, c.Start())
	defer c.Stop()

	select {
	case env := <-received:
		assert.Equal(t, "7", env.TenantID)
		assert.Equal(t, 3, env.InboxID)
		assert.Equal(t, 55, env.ConversationID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a dispatched envelope")
	}

	require.Eventually(t, func() bool { return c.State() == StateConnected },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "conn-1", c.ConnectionID())
	assert.False(t, c.LastHeartbeat().IsZero())
}

func TestClientUnknownEventTypeDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "event: connected\ndata: {\"connection_id\":\"conn-2\"}\n\n")
		fmt.Fprintf(w, "event: mystery.kind\ndata: {}\n\n")
		fmt.Fprintf(w, "event: heartbeat\ndata: {\"timestamp\":\"2026-08-01T00:00:00Z\"}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	c := New(Config{BaseURL: srv.URL, TenantID: "7", Logger: logger.NewNop()})
	require.NoError(t, c.Start())
	defer c.Stop()

	// Driver survives the unknown frame and keeps consuming.
	require.Eventually(t, func() bool { return c.State() == StateConnected },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !c.LastHeartbeat().IsZero() },
		2*time.Second, 10*time.Millisecond)
}

func TestClientRetryBudgetExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{
		BaseURL:      srv.URL,
		TenantID:     "7",
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		MaxAttempts:  3,
		Logger:       logger.NewNop(),
	})
	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return c.State() == StateDisconnected },
		5*time.Second, 10*time.Millisecond)

	// Initial attempt plus the three scheduled retries.
	assert.Equal(t, int32(4), attempts.Load())

	c.Stop()
}

func TestClientStateTransitions(t *testing.T) {
	srv := sseServer(t)

	var states []State
	stateCh := make(chan State, 16)

	c := New(Config{BaseURL: srv.URL, TenantID: "7", Logger: logger.NewNop()})
	c.OnStateChange(func(s State) { stateCh <- s })

	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return c.State() == StateConnected },
		2*time.Second, 10*time.Millisecond)

	c.Stop()
	assert.Equal(t, StateDisconnected, c.State())

	close(stateCh)
	for s := range stateCh {
		states = append(states, s)
	}
	assert.Contains(t, states, StateConnecting)
	assert.Contains(t, states, StateConnected)
	assert.Contains(t, states, StateDisconnected)
}

func TestClientStopIdempotent(t *testing.T) {
	srv := sseServer(t)

	c := New(Config{BaseURL: srv.URL, TenantID: "7", Logger: logger.NewNop()})
	require.NoError(t, c.Start())

	c.Stop()
	c.Stop()
	assert.Equal(t, StateDisconnected, c.State())

	// A stopped driver cannot be restarted.
	assert.Error(t, c.Start())
}

func TestClientStopWhileReconnecting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{
		BaseURL:      srv.URL,
		TenantID:     "7",
		InitialDelay: time.Hour, // the pending backoff timer must be cancelled
		MaxAttempts:  5,
		Logger:       logger.NewNop(),
	})
	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return c.State() == StateReconnecting },
		2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not cancel the pending reconnect")
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClientStopBeforeStart(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0", TenantID: "7", Logger: logger.NewNop()})
	c.Stop()
	assert.Equal(t, StateDisconnected, c.State())
	assert.Error(t, c.Start())
}

func TestClientUpdateInterestReattaches(t *testing.T) {
	var lastQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastQuery.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "event: connected\ndata: {\"connection_id\":\"conn-3\"}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	c := New(Config{BaseURL: srv.URL, TenantID: "7", InboxIDs: []int{3}, Logger: logger.NewNop()})
	require.NoError(t, c.Start())
	defer c.Stop()

	require.Eventually(t, func() bool { return c.State() == StateConnected },
		2*time.Second, 10*time.Millisecond)

	c.UpdateInterest([]int{3, 9}, 55)

	require.Eventually(t, func() bool {
		q, _ := lastQuery.Load().(string)
		return q != "" &&
			q == "conversation_id=55&inbox_ids=3%2C9&tenant_id=7"
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return c.State() == StateConnected },
		2*time.Second, 10*time.Millisecond)
}
