// Package ingest converts inbound webhook deliveries into normalized
// envelopes for the broadcast router.
package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/internal/notify"
	"github.com/capitalize-ai/realtime-gateway/pkg/logger"
	"github.com/capitalize-ai/realtime-gateway/pkg/metrics"
)

// Validation errors for structurally invalid webhook payloads. These map to
// a 4xx at the handler; unknown event kinds do not reach here.
var (
	ErrMissingAccount      = errors.New("webhook payload missing account")
	ErrMissingConversation = errors.New("webhook payload missing conversation")
)

// Normalizer maps platform webhook payloads into envelopes and fires the
// notification side effect for qualifying inbound messages.
type Normalizer struct {
	notifier notify.Notifier
	logger   *logger.Logger
}

// NewNormalizer creates a normalizer. notifier may be nil, disabling the
// notification side effect.
func NewNormalizer(notifier notify.Notifier, log *logger.Logger) *Normalizer {
	return &Normalizer{
		notifier: notifier,
		logger:   log,
	}
}

// Normalize converts one webhook delivery into zero or one envelope. An
// unrecognized event kind returns (nil, nil): the caller acknowledges the
// delivery so the platform does not retry what we chose not to act on. A
// structurally invalid payload returns an error.
func (n *Normalizer) Normalize(payload *model.WebhookPayload) (*model.Envelope, error) {
	switch payload.Event {
	case model.RawMessageCreated:
		return n.normalizeMessage(payload, model.EventTypeMessageCreated)
	case model.RawMessageUpdated:
		return n.normalizeMessage(payload, model.EventTypeMessageUpdated)
	case model.RawConversationCreated:
		return n.normalizeConversation(payload, model.EventTypeConversationCreated)
	case model.RawConversationUpdated:
		return n.normalizeConversation(payload, model.EventTypeConversationUpdated)
	case model.RawConversationStatusChanged:
		return n.normalizeConversation(payload, model.EventTypeConversationStatusChanged)
	default:
		metrics.RecordDropped("unknown_type")
		n.logger.Info("ignoring unrecognized webhook event", "event", payload.Event)
		return nil, nil
	}
}

func (n *Normalizer) normalizeMessage(payload *model.WebhookPayload, eventType model.EventType) (*model.Envelope, error) {
	if payload.Account == nil || payload.Account.ID == 0 {
		return nil, fmt.Errorf("%s: %w", payload.Event, ErrMissingAccount)
	}

	env := &model.Envelope{
		Type:      eventType,
		TenantID:  strconv.Itoa(payload.Account.ID),
		InboxID:   inboxID(payload),
		Timestamp: eventTime(payload),
		Payload: map[string]any{
			"message_id":   payload.ID,
			"content":      payload.Content,
			"message_type": payload.MessageType,
		},
	}
	if payload.Conversation != nil {
		env.ConversationID = payload.Conversation.ID
	}
	if payload.Sender != nil {
		env.Payload["sender"] = map[string]any{
			"id":   payload.Sender.ID,
			"type": payload.Sender.Type,
			"name": payload.Sender.Name,
		}
	}

	if eventType == model.EventTypeMessageCreated && isInboundContactMessage(payload) {
		n.notifyInboundMessage(payload, env)
	}

	metrics.RecordNormalized(string(eventType))
	return env, nil
}

func (n *Normalizer) normalizeConversation(payload *model.WebhookPayload, eventType model.EventType) (*model.Envelope, error) {
	if payload.Account == nil || payload.Account.ID == 0 {
		return nil, fmt.Errorf("%s: %w", payload.Event, ErrMissingAccount)
	}
	if payload.Conversation == nil || payload.Conversation.ID == 0 {
		return nil, fmt.Errorf("%s: %w", payload.Event, ErrMissingConversation)
	}

	env := &model.Envelope{
		Type:           eventType,
		TenantID:       strconv.Itoa(payload.Account.ID),
		InboxID:        inboxID(payload),
		ConversationID: payload.Conversation.ID,
		Timestamp:      eventTime(payload),
		Payload: map[string]any{
			"status": payload.Conversation.Status,
		},
	}
	if payload.Conversation.AssigneeID != nil {
		env.Payload["assignee_id"] = *payload.Conversation.AssigneeID
	}

	metrics.RecordNormalized(string(eventType))
	return env, nil
}

// notifyInboundMessage fires the notification-creation call for a
// customer-originated message, best effort.
func (n *Normalizer) notifyInboundMessage(payload *model.WebhookPayload, env *model.Envelope) {
	if n.notifier == nil {
		return
	}

	var assigneeID *int
	if payload.Conversation != nil {
		assigneeID = payload.Conversation.AssigneeID
		if assigneeID == nil && payload.Conversation.Meta != nil && payload.Conversation.Meta.Assignee != nil {
			id := payload.Conversation.Meta.Assignee.ID
			assigneeID = &id
		}
	}

	senderName := ""
	if payload.Sender != nil {
		senderName = payload.Sender.Name
	}

	notification := &model.Notification{
		ID:             uuid.New().String(),
		TenantID:       env.TenantID,
		ConversationID: env.ConversationID,
		AssigneeID:     assigneeID,
		Type:           "new_message",
		Title:          "New message",
		Body:           payload.Content,
		Priority:       model.NotificationPriorityNormal,
		Metadata: map[string]any{
			"inbox_id":    env.InboxID,
			"sender_name": senderName,
		},
		CreatedAt: time.Now(),
	}

	notify.Dispatch(n.notifier, notification, n.logger)
}

func isInboundContactMessage(payload *model.WebhookPayload) bool {
	return payload.MessageType == model.MessageTypeIncoming &&
		payload.Sender != nil &&
		payload.Sender.Type == model.SenderTypeContact
}

func inboxID(payload *model.WebhookPayload) int {
	if payload.Inbox != nil {
		return payload.Inbox.ID
	}
	if payload.Conversation != nil && payload.Conversation.Inbox != nil {
		return payload.Conversation.Inbox.ID
	}
	return 0
}

func eventTime(payload *model.WebhookPayload) time.Time {
	if payload.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, payload.CreatedAt); err == nil {
			return t
		}
	}
	return time.Now()
}
