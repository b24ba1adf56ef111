package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/layer-3/gatekeeper/core"
)

const defaultTopicPrefix = "gatekeeper"

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	prefix    string
}

// NewWatermillPublisher creates a new Watermill publisher.
// Events go to "<prefix>.<event type>", e.g. "gatekeeper.session.renewed".
func NewWatermillPublisher(publisher message.Publisher, prefix string) *WatermillPublisher {
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return &WatermillPublisher{
		publisher: publisher,
		prefix:    prefix,
	}
}

// Topic returns the topic an event type is published to
func (p *WatermillPublisher) Topic(eventType core.EventType) string {
	return p.prefix + "." + string(eventType)
}

// Publish publishes an audit event
func (p *WatermillPublisher) Publish(ctx context.Context, event core.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", string(event.Type))

	if err := p.publisher.Publish(p.Topic(event.Type), msg); err != nil {
		return errors.Wrap(err, "failed to publish event")
	}

	return nil
}
