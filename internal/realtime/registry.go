// Package realtime implements the in-process event distribution core: the
// connection registry, the broadcast router and the rolling event log.
package realtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/pkg/logger"
)

// defaultSinkBuffer is the per-connection push channel depth.
const defaultSinkBuffer = 64

// Push errors reported by Connection.Push. Both cause the router to detach
// the connection.
var (
	ErrConnClosed  = errors.New("connection closed")
	ErrPushTimeout = errors.New("push timed out")
)

// Connection is one subscriber's live attachment. The sink channel is never
// closed; teardown is signaled through done so a concurrent push can never
// panic on a detached connection.
type Connection struct {
	ID          string
	Interest    model.Interest
	ConnectedAt time.Time

	sink      chan *model.PushMessage
	done      chan struct{}
	closeOnce sync.Once
}

// Push delivers one message to the connection's sink, waiting at most
// timeout. It fails immediately if the connection is already closed.
func (c *Connection) Push(msg *model.PushMessage, timeout time.Duration) error {
	select {
	case <-c.done:
		return ErrConnClosed
	case c.sink <- msg:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sink <- msg:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-timer.C:
		return ErrPushTimeout
	}
}

// Receive returns the channel the owning transport reads pushed messages
// from.
func (c *Connection) Receive() <-chan *model.PushMessage {
	return c.sink
}

// Done is closed when the connection is detached, from any path.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Registry is the concurrency-safe table of live connections. All mutation
// happens through Attach and Detach; slow work (pushing to a peer) happens
// outside the lock against a Snapshot.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]*Connection
	sinkBuffer int
	logger     *logger.Logger
}

// NewRegistry creates an empty registry. sinkBuffer <= 0 selects the
// default per-connection buffer depth.
func NewRegistry(sinkBuffer int, log *logger.Logger) *Registry {
	if sinkBuffer <= 0 {
		sinkBuffer = defaultSinkBuffer
	}
	return &Registry{
		conns:      make(map[string]*Connection),
		sinkBuffer: sinkBuffer,
		logger:     log,
	}
}

// Attach registers a new connection for the given interest and returns it.
func (r *Registry) Attach(interest model.Interest) *Connection {
	conn := &Connection{
		ID:          uuid.New().String(),
		Interest:    interest,
		ConnectedAt: time.Now(),
		sink:        make(chan *model.PushMessage, r.sinkBuffer),
		done:        make(chan struct{}),
	}

	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.mu.Unlock()

	r.logger.Debug("connection attached",
		"connection_id", conn.ID,
		"tenant_id", interest.TenantID,
		"inbox_ids", interest.InboxIDList(),
	)

	return conn
}

// Detach removes a connection and signals its teardown. Detaching an
// unknown or already-detached id is a no-op: heartbeat failure, push
// failure and transport disconnect all race to call this.
func (r *Registry) Detach(id string) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	conn.close()
	r.logger.Debug("connection detached", "connection_id", id)
}

// Snapshot returns a point-in-time copy of the live connections for the
// router to iterate without holding the registry lock during pushes.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Stats returns connection counts grouped by tenant and by tenant/inbox.
func (r *Registry) Stats() model.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := model.RegistryStats{
		Total:    len(r.conns),
		ByTenant: make(map[string]int),
		ByInbox:  make(map[string]int),
	}
	for _, c := range r.conns {
		stats.ByTenant[c.Interest.TenantID]++
		for id := range c.Interest.InboxIDs {
			stats.ByInbox[fmt.Sprintf("%s/%d", c.Interest.TenantID, id)]++
		}
	}
	return stats
}

// Connections returns a diagnostics view of the live connections with ages.
func (r *Registry) Connections() []model.ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	infos := make([]model.ConnectionInfo, 0, len(r.conns))
	for _, c := range r.conns {
		infos = append(infos, model.ConnectionInfo{
			ID:             c.ID,
			TenantID:       c.Interest.TenantID,
			InboxIDs:       c.Interest.InboxIDList(),
			ConversationID: c.Interest.FocusedConversationID,
			AgeSeconds:     now.Sub(c.ConnectedAt).Seconds(),
		})
	}
	return infos
}
