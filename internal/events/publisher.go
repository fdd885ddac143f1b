package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/funnelworks/inbox-engine/internal/model"
	"github.com/funnelworks/inbox-engine/pkg/logger"
	"github.com/funnelworks/inbox-engine/pkg/metrics"
)

const (
	// StreamName is the JetStream stream holding inbox engine events.
	StreamName = "INBOX_EVENTS"

	// SubjectPrefix is the prefix for all engine event subjects.
	SubjectPrefix = "inbox"
)

// EventSubject returns the subject for one engine event.
func EventSubject(tenantID, conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, tenantID, conversationID, eventType)
}

// Publisher writes engine events to JetStream. Publishing is best-effort:
// a broker hiccup never blocks or fails reconciliation.
type Publisher struct {
	client *Client
	logger *logger.Logger
}

// NewPublisher creates a publisher on an established client.
func NewPublisher(client *Client, log *logger.Logger) *Publisher {
	return &Publisher{client: client, logger: log}
}

// EnsureStream ensures the events stream exists.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Inbox engine events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Publish sends one event without blocking the caller on broker
// round-trips.
func (p *Publisher) Publish(event *model.EngineEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		subject := EventSubject(event.TenantID, event.ConversationID, event.Type)
		data, err := json.Marshal(event)
		if err != nil {
			metrics.EventsPublished.WithLabelValues(string(event.Type), "error").Inc()
			p.logger.Warn("failed to marshal event", zap.Error(err))
			return
		}

		if _, err := p.client.JetStream().Publish(ctx, subject, data); err != nil {
			metrics.EventsPublished.WithLabelValues(string(event.Type), "error").Inc()
			p.logger.Warn("failed to publish event",
				zap.String("subject", subject),
				zap.Error(err),
			)
			return
		}
		metrics.EventsPublished.WithLabelValues(string(event.Type), "ok").Inc()
	}()
}
