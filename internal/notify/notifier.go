package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/realtime-gateway/internal/model"
	"github.com/capitalize-ai/realtime-gateway/pkg/logger"
	"github.com/capitalize-ai/realtime-gateway/pkg/metrics"
)

const (
	// StreamName is the name of the notifications stream.
	StreamName = "NOTIFICATIONS"

	// SubjectPrefix is the prefix for all notification subjects.
	SubjectPrefix = "notif"
)

// Notifier creates notifications for downstream delivery. The normalizer
// depends on this interface only; tests substitute a fake.
type Notifier interface {
	Create(ctx context.Context, n *model.Notification) error
}

// Publisher is the NATS-backed Notifier.
type Publisher struct {
	client *Client
}

// NewPublisher creates a notifier publishing to JetStream.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// EnsureStream ensures the notifications stream exists.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Notification-creation calls for downstream delivery",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// NotificationSubject returns the subject for a notification.
func NotificationSubject(tenantID, notificationType string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, tenantID, notificationType)
}

// Create publishes one notification-creation call.
func (p *Publisher) Create(ctx context.Context, n *model.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	subject := NotificationSubject(n.TenantID, n.Type)
	if _, err := p.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

// Dispatch runs the notification-creation call in the background with its
// own timeout. Failures are logged and counted, never propagated: a broken
// notification collaborator must not affect webhook handling or broadcast.
func Dispatch(notifier Notifier, n *model.Notification, log *logger.Logger) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("notification dispatch panicked", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := notifier.Create(ctx, n); err != nil {
			metrics.RecordNotification("error")
			log.Warn("notification creation failed",
				"tenant_id", n.TenantID,
				"conversation_id", n.ConversationID,
				"error", err,
			)
			return
		}
		metrics.RecordNotification("ok")
	}()
}
