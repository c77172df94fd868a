package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/planion/planion/pkg/events"
)

const (
	defaultMaxRetries      = 3
	defaultRetryDelay      = 100 * time.Millisecond
	defaultMaxRetryElapsed = 30 * time.Second
)

type subscription struct {
	id      string
	handler EventHandler
}

// WatermillEventBus dispatches events through a watermill publisher and
// subscriber pair. Publishing only enqueues; a single dispatch goroutine
// drains the subscription and invokes the handlers registered for the event
// type sequentially, so per-event handler ordering is preserved while the
// publisher is never blocked on listener latency.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	mu            sync.RWMutex
	subscriptions map[events.EventType][]subscription

	maxRetries      int
	retryDelay      time.Duration
	maxRetryElapsed time.Duration

	metrics Metrics
}

// NewWatermillEventBus creates a bus with the default retry policy: each
// failing handler is retried with doubling delay until the attempt budget or
// the total retry duration is exhausted, then the failure is counted and
// dispatch moves on.
func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:       pub,
		subscriber:      sub,
		logger:          logger.With("module", "eventbus"),
		subscriptions:   make(map[events.EventType][]subscription),
		maxRetries:      defaultMaxRetries,
		retryDelay:      defaultRetryDelay,
		maxRetryElapsed: defaultMaxRetryElapsed,
	}
}

// WithRetryPolicy overrides the dispatch retry policy.
func (eb *WatermillEventBus) WithRetryPolicy(maxRetries int, delay, maxElapsed time.Duration) *WatermillEventBus {
	eb.maxRetries = maxRetries
	eb.retryDelay = delay
	eb.maxRetryElapsed = maxElapsed

	return eb
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// Publish enqueues the event for asynchronous dispatch. It never blocks on
// handler execution.
func (eb *WatermillEventBus) Publish(_ context.Context, key string, event *events.WorkflowEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.Type))

	err = eb.publisher.Publish(events.Topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}

	eb.metrics.published.Add(1)

	return nil
}

// Subscribe starts the dispatch loop. Events are acked unconditionally once
// every handler had its chance: a handler that exhausts its retries is
// recorded as failed, never redelivered.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	go func() {
		for msg := range messages {
			eb.dispatch(ctx, msg)
			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) {
	event := &events.WorkflowEvent{}

	err := json.Unmarshal(msg.Payload, event)
	if err != nil {
		eb.logger.Error("Discarding undecodable event message",
			"message_id", msg.UUID, "error", err)
		eb.metrics.failed.Add(1)

		return
	}

	eb.mu.RLock()
	handlers := make([]subscription, len(eb.subscriptions[event.Type]))
	copy(handlers, eb.subscriptions[event.Type])
	eb.mu.RUnlock()

	for _, sub := range handlers {
		err := eb.invokeWithRetry(ctx, sub, event)
		if err != nil {
			eb.metrics.failed.Add(1)
			eb.logger.Error("Handler failed after retries",
				"subscription_id", sub.id,
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err)

			continue
		}

		eb.metrics.processed.Add(1)
	}
}

// invokeWithRetry runs one handler with bounded retries and doubling delay.
// Panics in handlers are converted to errors so one misbehaving listener
// cannot take down the dispatch loop.
func (eb *WatermillEventBus) invokeWithRetry(ctx context.Context, sub subscription, event *events.WorkflowEvent) error {
	deadline := time.Now().Add(eb.maxRetryElapsed)
	delay := eb.retryDelay

	var lastErr error

	for attempt := 0; attempt <= eb.maxRetries; attempt++ {
		lastErr = eb.invoke(ctx, sub, event)
		if lastErr == nil {
			return nil
		}

		if attempt == eb.maxRetries {
			break
		}

		if time.Now().Add(delay).After(deadline) {
			return fmt.Errorf("retry budget exhausted: %w", lastErr)
		}

		eb.logger.Warn("Handler failed, retrying",
			"subscription_id", sub.id,
			"event_type", event.Type,
			"attempt", attempt+1,
			"delay", delay,
			"error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
	}

	return lastErr
}

func (eb *WatermillEventBus) invoke(ctx context.Context, sub subscription, event *events.WorkflowEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return sub.handler(ctx, event)
}

// Handle registers a handler for one event type. Registration is per discrete
// type; a listener subscribing to many types registers once per type.
func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := watermill.NewUUID()
	eb.subscriptions[eventType] = append(eb.subscriptions[eventType], subscription{
		id:      id,
		handler: handler,
	})

	return id
}

// Unsubscribe removes one registration. Unknown IDs are ignored.
func (eb *WatermillEventBus) Unsubscribe(eventType events.EventType, subscriptionID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscriptions[eventType]
	for i, sub := range subs {
		if sub.id == subscriptionID {
			eb.subscriptions[eventType] = append(subs[:i], subs[i+1:]...)

			return
		}
	}
}

// Metrics returns the running published/processed/failed counters.
func (eb *WatermillEventBus) Metrics() MetricsSnapshot {
	return eb.metrics.Snapshot()
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
