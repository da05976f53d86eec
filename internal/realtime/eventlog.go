package realtime

import (
	"sync"

	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/pkg/metrics"
)

// defaultLogCapacity covers a realistic polling interval at the platform's
// event rate; the log is a catch-up buffer, not history.
const defaultLogCapacity = 256

// EventLog is a fixed-capacity ring of the most recent envelopes, queried
// by polling clients that cannot hold a live connection. Sequences are
// monotonic per process lifetime.
type EventLog struct {
	mu       sync.RWMutex
	entries  []model.LogEntry
	capacity int
	seq      uint64
}

// NewEventLog creates an event log. capacity <= 0 selects the default.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &EventLog{
		entries:  make([]model.LogEntry, 0, capacity),
		capacity: capacity,
	}
}

// Append retains the envelope and returns its assigned sequence, evicting
// the oldest entry on overflow.
func (l *EventLog) Append(env model.Envelope) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	entry := model.LogEntry{Sequence: l.seq, Envelope: env}
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries[len(l.entries)-1] = entry
	} else {
		l.entries = append(l.entries, entry)
	}

	metrics.SetEventLogSize(len(l.entries))
	return l.seq
}

// Since returns all entries with sequence strictly greater than after,
// oldest first, plus the current max sequence. gap is true when entries
// newer than after have already been evicted, so the caller cannot assume
// the returned list is complete.
func (l *EventLog) Since(after uint64) (entries []model.LogEntry, last uint64, gap bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	evictedThrough := l.seq - uint64(len(l.entries))
	gap = after < evictedThrough

	for _, e := range l.entries {
		if e.Sequence > after {
			entries = append(entries, e)
		}
	}
	return entries, l.seq, gap
}

// LastSequence returns the most recently assigned sequence.
func (l *EventLog) LastSequence() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Len returns the number of retained entries.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
