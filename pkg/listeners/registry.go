package listeners

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/planion/planion/pkg/eventbus"
	"github.com/planion/planion/pkg/events"
)

type registration struct {
	listener Listener
	enabled  bool
}

// Registry holds the installed listeners and wires them onto the event bus.
// A listener can be disabled and re-enabled without unregistering; while
// disabled its bus subscriptions stay in place but its Handle is skipped.
type Registry struct {
	mu            sync.RWMutex
	bus           eventbus.EventBus
	logger        *slog.Logger
	registrations map[string]*registration
}

// NewRegistry creates an empty listener registry on the given bus.
func NewRegistry(bus eventbus.EventBus, logger *slog.Logger) *Registry {
	return &Registry{
		bus:           bus,
		logger:        logger.With("module", "listeners"),
		registrations: make(map[string]*registration),
	}
}

// Register installs a listener, enabled, subscribing it to each of its
// declared event types.
func (r *Registry) Register(listener Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := listener.Name()
	if _, exists := r.registrations[name]; exists {
		return fmt.Errorf("listener %q already registered", name)
	}

	r.registrations[name] = &registration{listener: listener, enabled: true}

	for _, eventType := range listener.SubscribedEventTypes() {
		r.bus.Handle(eventType, r.wrap(name))
	}

	r.logger.Info("Registered listener",
		"listener", name, "event_types", len(listener.SubscribedEventTypes()))

	return nil
}

// wrap returns the bus handler for one listener, checking the enabled flag at
// dispatch time.
func (r *Registry) wrap(name string) eventbus.EventHandler {
	return func(ctx context.Context, event *events.WorkflowEvent) error {
		r.mu.RLock()
		reg, exists := r.registrations[name]
		enabled := exists && reg.enabled
		r.mu.RUnlock()

		if !enabled {
			return nil
		}

		return reg.listener.Handle(ctx, event)
	}
}

// SetEnabled toggles a listener without unregistering it.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, exists := r.registrations[name]
	if !exists {
		return fmt.Errorf("listener %q not registered", name)
	}

	reg.enabled = enabled
	r.logger.Info("Toggled listener", "listener", name, "enabled", enabled)

	return nil
}

// Enabled reports whether the named listener is registered and enabled.
func (r *Registry) Enabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.registrations[name]

	return exists && reg.enabled
}

// Names returns the registered listener names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.registrations))
	for name := range r.registrations {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
