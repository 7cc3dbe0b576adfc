package deadletter

import (
	"context"
	"sort"
	"sync"

	"github.com/orderflow/orderflow/internal/application/appcore"
)

// InMemoryStore is an in-memory appcore.DeadLetterStore for tests and
// single-binary setups.
type InMemoryStore struct {
	mu      sync.RWMutex
	letters []appcore.DeadLetter
}

// NewInMemoryStore creates an empty in-memory dead letter store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Add records a dead letter.
func (s *InMemoryStore) Add(_ context.Context, letter appcore.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.letters = append(s.letters, letter)
	return nil
}

// List returns dead letters, newest first, up to limit.
func (s *InMemoryStore) List(_ context.Context, limit int) ([]appcore.DeadLetter, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	letters := make([]appcore.DeadLetter, len(s.letters))
	copy(letters, s.letters)
	sort.SliceStable(letters, func(i, j int) bool {
		return letters[i].FailedAt.After(letters[j].FailedAt)
	})

	if len(letters) > limit {
		letters = letters[:limit]
	}

	return letters, nil
}

// ListAggregateIDs returns the distinct aggregate ids with dead letters.
func (s *InMemoryStore) ListAggregateIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, letter := range s.letters {
		if _, ok := seen[letter.AggregateID]; ok {
			continue
		}
		seen[letter.AggregateID] = struct{}{}
		ids = append(ids, letter.AggregateID)
	}

	return ids, nil
}

// Remove deletes the dead letters for one aggregate.
func (s *InMemoryStore) Remove(_ context.Context, aggregateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.letters[:0]
	for _, letter := range s.letters {
		if letter.AggregateID != aggregateID {
			kept = append(kept, letter)
		}
	}
	s.letters = kept

	return nil
}

// Count returns the number of stored dead letters.
func (s *InMemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.letters)), nil
}

var _ appcore.DeadLetterStore = (*InMemoryStore)(nil)
