package memory

import (
	"context"
	"sync"

	audit "provenance/pkg/platform/audit"
)

// InMemoryStore keeps audit events per document for development and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
	all    []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
	s.all = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.DocumentID] = append(s.events[event.DocumentID], event)
	s.all = append(s.all, event)
	return nil
}

func (s *InMemoryStore) ListByDocument(_ context.Context, documentID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[documentID]...), nil
}

// ListRecent returns the most recent N events across all documents.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.all) - limit
	if start < 0 {
		start = 0
	}
	return append([]audit.Event{}, s.all[start:]...), nil
}
