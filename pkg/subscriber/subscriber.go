// Package subscriber implements the client side of the realtime gateway:
// one Client owns a subscriber stream, dispatches pushed events to
// registered handlers, and reconnects with bounded exponential backoff.
package subscriber

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/pkg/logger"
)

// State describes the driver's position in its lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	// StateDisconnected is terminal: explicit stop, or retry budget
	// exhausted. The owner surfaces it as a degraded indicator.
	StateDisconnected State = "disconnected"
)

// Handler receives one envelope of a subscribed event type.
type Handler func(env model.Envelope)

// Config configures a Client. Zero durations and counts select defaults
// matching the gateway's expectations (1s base, 30s ceiling, 5 attempts).
type Config struct {
	BaseURL        string
	TenantID       string
	InboxIDs       []int
	ConversationID int
	AuthToken      string
	HTTPClient     *http.Client
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	MaxAttempts    int
	Logger         *logger.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.HTTPClient == nil {
		out.HTTPClient = http.DefaultClient
	}
	if out.InitialDelay <= 0 {
		out.InitialDelay = time.Second
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 30 * time.Second
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 5
	}
	if out.Logger == nil {
		out.Logger = logger.Global()
	}
	return out
}

// interestParams are the subscription parameters; changing them tears down
// the live stream and attaches a fresh one, never mutating in place.
type interestParams struct {
	inboxIDs       []int
	conversationID int
}

// Client is the reconnection driver for one subscriber.
type Client struct {
	cfg Config

	mu           sync.Mutex
	params       interestParams
	handlers     map[model.EventType]Handler
	onState      func(State)
	state        State
	connectionID string
	lastBeat     time.Time
	cancel       context.CancelFunc
	streamCancel context.CancelFunc
	done         chan struct{}
}

// New creates a driver in StateIdle. Register handlers before Start.
func New(cfg Config) *Client {
	c := &Client{
		cfg:      cfg.withDefaults(),
		handlers: make(map[model.EventType]Handler),
		state:    StateIdle,
	}
	c.params = interestParams{
		inboxIDs:       append([]int(nil), c.cfg.InboxIDs...),
		conversationID: c.cfg.ConversationID,
	}
	return c
}

// On registers a handler for a domain event type.
func (c *Client) On(t model.EventType, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = h
}

// OnStateChange registers a hook invoked on every state transition.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// State returns the current driver state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID returns the id assigned by the gateway on the current
// attachment, empty while not connected.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionID
}

// LastHeartbeat returns when the stream last proved liveness.
func (c *Client) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBeat
}

// Start begins connecting. It is an error to start a driver twice; a
// stopped driver stays stopped.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("subscriber already started (state %s)", state)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = StateConnecting
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(StateConnecting)
	}
	go c.run(ctx)
	return nil
}

// Stop terminates the driver, cancelling any in-flight connection attempt
// and any pending backoff timer. Safe to call repeatedly and from any
// state; returns once the run loop has exited.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	var fn func(State)
	if c.state == StateIdle {
		c.state = StateDisconnected
		fn = c.onState
	}
	c.mu.Unlock()

	if fn != nil {
		fn(StateDisconnected)
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// UpdateInterest replaces the subscription parameters. A live stream is
// torn down and reattached with the new filter; the retry budget resets.
func (c *Client) UpdateInterest(inboxIDs []int, conversationID int) {
	c.mu.Lock()
	c.params = interestParams{
		inboxIDs:       append([]int(nil), inboxIDs...),
		conversationID: conversationID,
	}
	streamCancel := c.streamCancel
	c.mu.Unlock()

	if streamCancel != nil {
		streamCancel()
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	policy := newBackoffPolicy(c.cfg.InitialDelay, c.cfg.MaxDelay)
	failures := 0

	for {
		streamCtx, streamCancel := context.WithCancel(ctx)
		c.mu.Lock()
		c.streamCancel = streamCancel
		c.mu.Unlock()

		err := c.stream(streamCtx, func() {
			// Connected ack observed: the attachment succeeded, so the
			// consecutive-failure counter resets.
			failures = 0
			policy.Reset()
			c.setState(StateConnected)
		})
		tornDown := streamCtx.Err() == context.Canceled
		streamCancel()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		if tornDown {
			// Torn down by UpdateInterest; reattach immediately with the
			// new parameters.
			c.cfg.Logger.Debug("subscription parameters changed, reattaching")
			failures = 0
			policy.Reset()
			c.setState(StateConnecting)
			continue
		}

		failures++
		if failures > c.cfg.MaxAttempts {
			c.cfg.Logger.Warn("retry budget exhausted, giving up",
				"attempts", c.cfg.MaxAttempts, "error", err)
			c.setState(StateDisconnected)
			return
		}

		delay := policy.NextBackOff()
		c.cfg.Logger.Info("stream failed, scheduling reconnect",
			"attempt", failures, "delay", delay, "error", err)
		c.setState(StateReconnecting)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(StateDisconnected)
			return
		case <-timer.C:
		}
		c.setState(StateConnecting)
	}
}

// stream holds one attachment: connect, read frames, dispatch. Returns when
// the transport fails or the context is cancelled.
func (c *Client) stream(ctx context.Context, onConnected func()) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if event != "" {
				c.dispatch(model.EventType(event), []byte(data), onConnected)
			}
			event, data = "", ""
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed by server")
}

// dispatch classifies one pushed frame. Control frames update liveness
// bookkeeping; domain frames go to the registered handler; unknown types
// are logged and dropped.
func (c *Client) dispatch(event model.EventType, data []byte, onConnected func()) {
	switch event {
	case model.EventTypeConnected:
		var ack model.ConnectedAck
		if err := json.Unmarshal(data, &ack); err != nil {
			c.cfg.Logger.Warn("malformed connected ack", "error", err)
			return
		}
		c.mu.Lock()
		c.connectionID = ack.ConnectionID
		c.lastBeat = time.Now()
		c.mu.Unlock()
		onConnected()
		return

	case model.EventTypeHeartbeat:
		c.mu.Lock()
		c.lastBeat = time.Now()
		c.mu.Unlock()
		return

	case model.EventTypeError:
		c.cfg.Logger.Warn("server error frame", "data", string(data))
		return
	}

	if !model.KnownEventType(event) {
		c.cfg.Logger.Info("dropping unknown event type", "event", event)
		return
	}

	c.mu.Lock()
	handler := c.handlers[event]
	c.mu.Unlock()
	if handler == nil {
		return
	}

	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.cfg.Logger.Warn("malformed envelope", "event", event, "error", err)
		return
	}
	handler(env)
}

func (c *Client) streamURL() string {
	c.mu.Lock()
	params := c.params
	c.mu.Unlock()

	q := url.Values{}
	q.Set("tenant_id", c.cfg.TenantID)
	if len(params.inboxIDs) > 0 {
		ids := make([]string, 0, len(params.inboxIDs))
		for _, id := range params.inboxIDs {
			ids = append(ids, strconv.Itoa(id))
		}
		q.Set("inbox_ids", strings.Join(ids, ","))
	}
	if params.conversationID > 0 {
		q.Set("conversation_id", strconv.Itoa(params.conversationID))
	}

	return strings.TrimRight(c.cfg.BaseURL, "/") + "/api/v1/stream?" + q.Encode()
}

// setState records a transition and invokes the state hook synchronously,
// outside the lock so the hook is free to call back into the client. Hooks
// must not block; they run on the driver's goroutine.
func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

// newBackoffPolicy builds the reconnect delay policy: base doubling per
// attempt, no jitter, capped at max, never self-terminating (the attempt
// counter in run enforces the budget).
func newBackoffPolicy(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
