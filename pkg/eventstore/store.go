// Package eventstore provides the append-only, queryable in-process log of
// workflow events.
package eventstore

import (
	"sync"

	"github.com/planion/planion/pkg/events"
)

// Store is an append-only event log. Append order is chronological and is the
// only ordering the store knows. Queries never fail for unknown identifiers;
// they return empty slices.
type Store struct {
	mu     sync.RWMutex
	events []*events.WorkflowEvent
}

// NewStore creates an empty event store.
func NewStore() *Store {
	return &Store{
		events: make([]*events.WorkflowEvent, 0),
	}
}

// Add appends an event to the log. The store performs no dispatch; publishing
// is the manager's job.
func (s *Store) Add(event *events.WorkflowEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events)
}

// All returns every stored event in append order.
func (s *Store) All() []*events.WorkflowEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*events.WorkflowEvent, len(s.events))
	copy(out, s.events)

	return out
}

// ForPlan returns the events recorded for a plan, in append order.
func (s *Store) ForPlan(planID string) []*events.WorkflowEvent {
	return s.filter(func(e *events.WorkflowEvent) bool {
		return e.PlanID == planID
	})
}

// ForTask returns the events recorded for a task, in append order.
func (s *Store) ForTask(taskID string) []*events.WorkflowEvent {
	return s.filter(func(e *events.WorkflowEvent) bool {
		return e.TaskID == taskID
	})
}

// ByType returns the events of one type, in append order.
func (s *Store) ByType(eventType events.EventType) []*events.WorkflowEvent {
	return s.filter(func(e *events.WorkflowEvent) bool {
		return e.Type == eventType
	})
}

// Recent returns the most recent n events in append order. A non-positive n
// returns an empty slice.
func (s *Store) Recent(n int) []*events.WorkflowEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		return make([]*events.WorkflowEvent, 0)
	}

	start := len(s.events) - n
	if start < 0 {
		start = 0
	}

	out := make([]*events.WorkflowEvent, len(s.events)-start)
	copy(out, s.events[start:])

	return out
}

// Snapshot returns the full log for persistence. The result round-trips
// losslessly through Restore.
func (s *Store) Snapshot() []*events.WorkflowEvent {
	return s.All()
}

// Restore replaces the log with a previously snapshotted one.
func (s *Store) Restore(stored []*events.WorkflowEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make([]*events.WorkflowEvent, len(stored))
	copy(s.events, stored)
}

func (s *Store) filter(keep func(*events.WorkflowEvent) bool) []*events.WorkflowEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*events.WorkflowEvent, 0)

	for _, event := range s.events {
		if keep(event) {
			out = append(out, event)
		}
	}

	return out
}
