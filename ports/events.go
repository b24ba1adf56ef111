package ports

import (
	"context"
	"time"

	"github.com/layer-3/gatekeeper/core"
)

// EventPublisher publishes audit events to other services
type EventPublisher interface {
	Publish(ctx context.Context, event core.Event) error
}

// Metrics records authentication outcomes
type Metrics interface {
	ObserveOutcome(outcome string)
	ObserveDuration(d time.Duration)
}
