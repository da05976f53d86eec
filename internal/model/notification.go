package model

import "time"

// NotificationPriority ranks notification urgency.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// Notification is the payload of the notification-creation call fired for
// qualifying inbound messages. Delivery is best effort; the collaborator
// owns persistence and routing.
type Notification struct {
	ID             string               `json:"id"`
	TenantID       string               `json:"tenant_id"`
	ConversationID int                  `json:"conversation_id"`
	AssigneeID     *int                 `json:"assignee_id"`
	Type           string               `json:"type"`
	Title          string               `json:"title"`
	Body           string               `json:"body"`
	Priority       NotificationPriority `json:"priority"`
	Metadata       map[string]any       `json:"metadata,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}
