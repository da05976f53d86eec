package model

// PollEventsResponse is returned by the polling fallback endpoint. Gap is
// true when the requested sequence predates the oldest retained entry, so
// the client knows events may be missing rather than merely absent.
type PollEventsResponse struct {
	Events       []LogEntry `json:"events"`
	LastSequence uint64     `json:"last_sequence"`
	Gap          bool       `json:"gap"`
}

// ConnectionInfo describes one live connection for diagnostics.
type ConnectionInfo struct {
	ID             string  `json:"id"`
	TenantID       string  `json:"tenant_id"`
	InboxIDs       []int   `json:"inbox_ids,omitempty"`
	ConversationID int     `json:"conversation_id,omitempty"`
	AgeSeconds     float64 `json:"age_seconds"`
}

// RegistryStats aggregates connection counts for diagnostics.
type RegistryStats struct {
	Total    int            `json:"total"`
	ByTenant map[string]int `json:"by_tenant"`
	ByInbox  map[string]int `json:"by_inbox"`
}

// DiagnosticsResponse is the diagnostics endpoint body.
type DiagnosticsResponse struct {
	Stats       RegistryStats    `json:"stats"`
	Connections []ConnectionInfo `json:"connections"`
}
