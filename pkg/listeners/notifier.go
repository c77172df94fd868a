package listeners

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/planion/planion/pkg/events"
)

// NotifierTopic is the external topic events are mirrored to.
const NotifierTopic = "planion.notifications"

// Notifier mirrors every workflow event onto an external message transport
// (Kafka in production) so systems outside the process can follow along. It
// is the only bridge between the in-process event stream and the outside
// world.
type Notifier struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

func NewNotifier(publisher message.Publisher, logger *slog.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		topic:     NotifierTopic,
		logger:    logger.With("module", "notifier"),
	}
}

// WithTopic overrides the external topic.
func (l *Notifier) WithTopic(topic string) *Notifier {
	l.topic = topic

	return l
}

func (l *Notifier) Name() string {
	return "notifier"
}

func (l *Notifier) SubscribedEventTypes() []events.EventType {
	return events.AllEventTypes()
}

func (l *Notifier) Handle(_ context.Context, event *events.WorkflowEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.Type))
	msg.Metadata.Set(events.EventMetadataKey, event.PlanID)

	err = l.publisher.Publish(l.topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish notification for event %s: %w", event.ID, err)
	}

	return nil
}
