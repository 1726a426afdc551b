package apikey

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	records map[string]*Record
	mu      sync.RWMutex
}

// NewMemoryStore creates a store seeded with the given records.
func NewMemoryStore(records ...*Record) *MemoryStore {
	s := &MemoryStore{records: make(map[string]*Record, len(records))}
	for _, rec := range records {
		clone := *rec
		s.records[rec.Key] = &clone
	}
	return s
}

// FindActive implements Store.
func (s *MemoryStore) FindActive(_ context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok || rec.Status != StatusActive {
		return nil, ErrUnauthorized
	}

	clone := *rec
	return &clone, nil
}

// IncrementUsage implements Store.
func (s *MemoryStore) IncrementUsage(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		rec.UsageCount++
	}
	return nil
}

// ResetUsage implements Store.
func (s *MemoryStore) ResetUsage(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		rec.UsageCount = 0
	}
	return nil
}

// Usage returns the advisory usage counter for a key. Test helper.
func (s *MemoryStore) Usage(key string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.records[key]; ok {
		return rec.UsageCount
	}
	return 0
}
