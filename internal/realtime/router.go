package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/pkg/logger"
	"github.com/capitalize-ai/realtime-gateway/pkg/metrics"
)

// defaultPushTimeout bounds how long one hung subscriber can hold up a
// dispatch before being detached.
const defaultPushTimeout = 5 * time.Second

// Router delivers normalized envelopes to matching connections and records
// every envelope in the rolling event log. One router instance serializes
// its dispatches, preserving webhook-delivery order in both the log and
// each connection's stream.
type Router struct {
	registry    *Registry
	log         *EventLog
	pushTimeout time.Duration
	logger      *logger.Logger

	mu sync.Mutex
}

// NewRouter creates a router over the given registry and event log.
// pushTimeout <= 0 selects the default.
func NewRouter(registry *Registry, log *EventLog, pushTimeout time.Duration, lg *logger.Logger) *Router {
	if pushTimeout <= 0 {
		pushTimeout = defaultPushTimeout
	}
	return &Router{
		registry:    registry,
		log:         log,
		pushTimeout: pushTimeout,
		logger:      lg,
	}
}

// Dispatch appends the envelope to the event log and pushes it to every
// matching connection. A failed push detaches that connection and never
// aborts delivery to the rest. Returns the assigned log sequence.
func (r *Router) Dispatch(env *model.Envelope) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The log sees every envelope exactly once, matched or not.
	seq := r.log.Append(*env)

	data, err := json.Marshal(env)
	if err != nil {
		// Envelopes are built from decoded JSON; this cannot normally fail.
		r.logger.Error("failed to encode envelope", "error", err, "type", env.Type)
		return seq
	}
	msg := &model.PushMessage{Event: env.Type, Data: data}

	delivered := 0
	for _, conn := range r.registry.Snapshot() {
		if !conn.Interest.Matches(env) {
			continue
		}
		if err := conn.Push(msg, r.pushTimeout); err != nil {
			r.registry.Detach(conn.ID)
			metrics.RecordPushFailure()
			r.logger.Warn("push failed, connection detached",
				"connection_id", conn.ID,
				"tenant_id", conn.Interest.TenantID,
				"error", err,
			)
			continue
		}
		delivered++
	}

	metrics.RecordBroadcast(string(env.Type), delivered)
	r.logger.Debug("envelope dispatched",
		"type", env.Type,
		"tenant_id", env.TenantID,
		"sequence", seq,
		"delivered", delivered,
	)

	return seq
}
