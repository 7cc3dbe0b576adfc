package eventstore

import (
	"context"
	"sync"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/domain/event"
)

// InMemoryEventStore implements appcore.EventStore in memory for tests and
// single-process wiring.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]event.DomainEvent
	types  map[string]string
}

// NewInMemoryEventStore creates an in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		events: make(map[string][]event.DomainEvent),
		types:  make(map[string]string),
	}
}

// SaveEvents appends events for an aggregate under optimistic locking.
func (s *InMemoryEventStore) SaveEvents(
	_ context.Context,
	aggregateID string,
	events []event.DomainEvent,
	expectedVersion int,
) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	currentVersion := len(s.events[aggregateID])
	if currentVersion != expectedVersion {
		return appcore.ErrConcurrencyConflict
	}

	s.events[aggregateID] = append(s.events[aggregateID], events...)
	s.types[aggregateID] = events[0].AggregateType()

	return nil
}

// LoadEvents loads all events for an aggregate.
func (s *InMemoryEventStore) LoadEvents(
	_ context.Context,
	aggregateID string,
) ([]event.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, exists := s.events[aggregateID]
	if !exists {
		return nil, appcore.ErrAggregateNotFound
	}

	// Copy to keep callers from observing later appends.
	result := make([]event.DomainEvent, len(events))
	copy(result, events)

	return result, nil
}

// GetVersion returns the current version of an aggregate.
func (s *InMemoryEventStore) GetVersion(
	_ context.Context,
	aggregateID string,
) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events[aggregateID]), nil
}

// ListAggregateIDs returns the distinct aggregate ids of the given type.
func (s *InMemoryEventStore) ListAggregateIDs(
	_ context.Context,
	aggregateType string,
) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		if s.types[id] == aggregateType {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// Clear removes all events (for tests).
func (s *InMemoryEventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string][]event.DomainEvent)
	s.types = make(map[string]string)
}
