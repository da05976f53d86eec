package model

// Raw webhook event kinds as delivered by the messaging platform. Anything
// outside this set is accepted and dropped without producing an envelope.
const (
	RawMessageCreated            = "message_created"
	RawMessageUpdated            = "message_updated"
	RawConversationCreated       = "conversation_created"
	RawConversationUpdated       = "conversation_updated"
	RawConversationStatusChanged = "conversation_status_changed"
)

// Sender types the platform attaches to messages. Only contact-originated
// incoming messages trigger the notification side effect.
const (
	SenderTypeContact = "contact"
	SenderTypeAgent   = "agent"
)

// MessageTypeIncoming marks a customer-originated message.
const MessageTypeIncoming = "incoming"

// WebhookPayload is the platform-defined webhook body. Fields are pointers
// where their absence is meaningful to validation.
type WebhookPayload struct {
	Event        string               `json:"event"`
	Account      *WebhookAccount      `json:"account,omitempty"`
	Inbox        *WebhookInbox        `json:"inbox,omitempty"`
	Conversation *WebhookConversation `json:"conversation,omitempty"`
	Sender       *WebhookSender       `json:"sender,omitempty"`
	MessageType  string               `json:"message_type,omitempty"`
	Content      string               `json:"content,omitempty"`
	ID           int                  `json:"id,omitempty"`
	CreatedAt    string               `json:"created_at,omitempty"`
}

// WebhookAccount identifies the tenant on the platform side.
type WebhookAccount struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// WebhookInbox identifies the inbox an event belongs to.
type WebhookInbox struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// WebhookConversation carries the conversation subset the gateway consumes.
type WebhookConversation struct {
	ID         int              `json:"id"`
	Status     string           `json:"status,omitempty"`
	AssigneeID *int             `json:"assignee_id,omitempty"`
	Inbox      *WebhookInbox    `json:"inbox,omitempty"`
	Meta       *WebhookConvMeta `json:"meta,omitempty"`
}

// WebhookConvMeta holds nested conversation metadata.
type WebhookConvMeta struct {
	Assignee *WebhookSender `json:"assignee,omitempty"`
}

// WebhookSender describes who originated a message.
type WebhookSender struct {
	ID   int    `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// WebhookResponse is returned to the platform for every accepted delivery.
type WebhookResponse struct {
	Received bool   `json:"received"`
	Event    string `json:"event"`
}
