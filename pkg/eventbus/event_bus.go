// Package eventbus decouples the workflow manager from the listeners that
// react to its events.
package eventbus

import (
	"context"

	"github.com/planion/planion/pkg/events"
)

// EventHandler consumes one event. A handler error triggers the bus retry
// policy for that handler only; it is never propagated to the publisher.
type EventHandler func(ctx context.Context, event *events.WorkflowEvent) error

type EventPublisher interface {
	Publish(ctx context.Context, key string, event *events.WorkflowEvent) error
}

type EventSubscriber interface {
	// Handle registers a handler for one event type and returns the
	// subscription ID used to unsubscribe it.
	Handle(eventType events.EventType, handler EventHandler) string
	Unsubscribe(eventType events.EventType, subscriptionID string)
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Metrics() MetricsSnapshot
	Close() error
	GenerateID() string
}
