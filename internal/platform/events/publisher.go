// Package events publishes order lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// Event types.
const (
	TypeOrderCreated                  = "order.created"
	TypeOrderStatusChanged            = "order.status.changed"
	TypePaymentReconciliationRequired = "payment.reconciliation.required"
)

// Event is the envelope written as the message body.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Subject    string         `json:"subject"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PubSubPublisher publishes events to a single Pub/Sub topic. The event type and subject are
// copied to message attributes so subscriptions can filter on them.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a publisher for topic.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("events: topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

// Publish sends event and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, event Event) error {
	if strings.TrimSpace(event.Type) == "" {
		return errors.New("events: event type is required")
	}
	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", event.Type, err)
	}
	attrs := map[string]string{"type": event.Type}
	if event.Subject != "" {
		attrs["subject"] = event.Subject
	}
	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if event.ID != "" {
		attrs["eventId"] = event.ID
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("events: publish %s: %w", event.Type, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}

// LogPublisher records events through a log function; it is used when no topic is configured.
type LogPublisher struct {
	Log func(ctx context.Context, event string, fields map[string]any)
}

// Publish implements Publisher.
func (p LogPublisher) Publish(ctx context.Context, event Event) error {
	if p.Log == nil {
		return nil
	}
	p.Log(ctx, "events.published", map[string]any{
		"eventType": event.Type,
		"subject":   event.Subject,
		"eventId":   event.ID,
	})
	return nil
}
