// Package model defines data structures for the realtime gateway.
package model

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event carried by an Envelope or
// pushed down a subscriber stream.
type EventType string

// Domain event types produced by the normalizer.
const (
	EventTypeMessageCreated            EventType = "message.created"
	EventTypeMessageUpdated            EventType = "message.updated"
	EventTypeConversationCreated       EventType = "conversation.created"
	EventTypeConversationUpdated       EventType = "conversation.updated"
	EventTypeConversationStatusChanged EventType = "conversation.status_changed"
)

// Control event types generated by the gateway itself. These are consumed
// by the subscriber driver and never enter the rolling event log.
const (
	EventTypeConnected EventType = "connected"
	EventTypeHeartbeat EventType = "heartbeat"
	EventTypeError     EventType = "error"
)

// KnownEventType reports whether t is a domain event type the router
// broadcasts.
func KnownEventType(t EventType) bool {
	switch t {
	case EventTypeMessageCreated,
		EventTypeMessageUpdated,
		EventTypeConversationCreated,
		EventTypeConversationUpdated,
		EventTypeConversationStatusChanged:
		return true
	}
	return false
}

// Envelope is the normalized internal representation of one domain event,
// independent of the originating webhook's wire format.
type Envelope struct {
	Type           EventType      `json:"type"`
	TenantID       string         `json:"tenant_id"`
	InboxID        int            `json:"inbox_id,omitempty"`
	ConversationID int            `json:"conversation_id,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Interest is the predicate used to decide whether a connection receives a
// given envelope. InboxIDs empty means the connection receives all tenant
// events. FocusedConversationID is advisory only and never filters delivery.
type Interest struct {
	TenantID              string       `json:"tenant_id"`
	InboxIDs              map[int]bool `json:"-"`
	FocusedConversationID int          `json:"focused_conversation_id,omitempty"`
}

// Matches reports whether an envelope should be delivered to a connection
// holding this interest. Conversation focus is deliberately not part of the
// predicate: list-level UI state needs updates from every in-scope
// conversation, not just the focused one.
func (i Interest) Matches(env *Envelope) bool {
	if i.TenantID != env.TenantID {
		return false
	}
	if env.InboxID != 0 && len(i.InboxIDs) > 0 && !i.InboxIDs[env.InboxID] {
		return false
	}
	return true
}

// InboxIDList returns the inbox filter as a slice, in no particular order,
// for ack and diagnostics output.
func (i Interest) InboxIDList() []int {
	if len(i.InboxIDs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(i.InboxIDs))
	for id := range i.InboxIDs {
		ids = append(ids, id)
	}
	return ids
}

// PushMessage is one frame pushed to a subscriber connection. Data is
// encoded once by the router and shared across all matching connections.
type PushMessage struct {
	Event EventType
	Data  json.RawMessage
}

// LogEntry is one retained entry of the rolling event log.
type LogEntry struct {
	Sequence uint64   `json:"sequence"`
	Envelope Envelope `json:"envelope"`
}

// ConnectedAck is the first frame pushed on a new subscriber stream,
// confirming the assigned connection id and the derived interest.
type ConnectedAck struct {
	ConnectionID   string `json:"connection_id"`
	TenantID       string `json:"tenant_id"`
	InboxIDs       []int  `json:"inbox_ids,omitempty"`
	ConversationID int    `json:"conversation_id,omitempty"`
}

// HeartbeatEvent is the periodic keepalive frame.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent is pushed before closing a stream on an internal failure.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
