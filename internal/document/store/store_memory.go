package store

import (
	"context"
	"sync"

	"provenance/internal/document/models"
	"provenance/pkg/platform/sentinel"
)

// InMemoryRecordStore keeps records under a single mutex, which gives the same
// single-key conditional-write semantics the postgres store provides with
// row locks. Intended for development and tests.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]models.DocumentRecord
	order   []string
}

func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{records: make(map[string]models.DocumentRecord)}
}

func (s *InMemoryRecordStore) Create(_ context.Context, record models.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	s.records[record.ID] = record
	s.order = append(s.order, record.ID)
	return nil
}

func (s *InMemoryRecordStore) Get(_ context.Context, id string) (models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[id]; ok {
		return record, nil
	}
	return models.DocumentRecord{}, sentinel.ErrNotFound
}

func (s *InMemoryRecordStore) ListByStatus(_ context.Context, statuses ...models.Status) ([]models.DocumentRecord, error) {
	wanted := make(map[models.Status]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DocumentRecord
	for _, id := range s.order {
		record := s.records[id]
		if len(wanted) == 0 || wanted[record.Status] {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *InMemoryRecordStore) UpdateIfStatus(_ context.Context, id string, expected models.Status, apply func(*models.DocumentRecord) error) (models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return models.DocumentRecord{}, sentinel.ErrNotFound
	}
	if record.Status != expected {
		return models.DocumentRecord{}, sentinel.ErrConflict
	}
	if err := apply(&record); err != nil {
		return models.DocumentRecord{}, err
	}
	s.records[id] = record
	return record, nil
}

// InMemoryLogStore is the append-only status trail for development and tests.
type InMemoryLogStore struct {
	mu      sync.RWMutex
	entries map[string][]models.StatusLogEntry
}

func NewInMemoryLogStore() *InMemoryLogStore {
	return &InMemoryLogStore{entries: make(map[string][]models.StatusLogEntry)}
}

func (s *InMemoryLogStore) Append(_ context.Context, entry models.StatusLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.DocumentID] = append(s.entries[entry.DocumentID], entry)
	return nil
}

func (s *InMemoryLogStore) ListByDocument(_ context.Context, documentID string) ([]models.StatusLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.StatusLogEntry{}, s.entries[documentID]...), nil
}
