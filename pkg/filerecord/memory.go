package filerecord

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-instance setups.
type MemoryStore struct {
	records map[string]*Record
	now     func() time.Time
	mu      sync.RWMutex
}

// MemoryOption configures the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the store's time source. Used by tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.FileKey]; ok {
		return ErrDuplicateKey
	}

	clone := *rec
	s.records[rec.FileKey] = &clone

	return nil
}

// FindByKey implements Store. Soft-deleted records are invisible.
func (s *MemoryStore) FindByKey(_ context.Context, fileKey string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[fileKey]
	if !ok || rec.DeletedAt != nil {
		return nil, ErrNotFound
	}

	clone := *rec
	return &clone, nil
}

// SoftDelete implements Store.
func (s *MemoryStore) SoftDelete(_ context.Context, fileKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fileKey]
	if !ok || rec.DeletedAt != nil {
		return ErrNotFound
	}

	now := s.now()
	rec.DeletedAt = &now

	return nil
}

// IncrementDownload implements Store.
func (s *MemoryStore) IncrementDownload(_ context.Context, fileKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fileKey]
	if !ok || rec.DeletedAt != nil {
		return ErrNotFound
	}

	rec.DownloadCount++

	return nil
}

// ListExpired implements Store.
func (s *MemoryStore) ListExpired(_ context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()

	var out []*Record
	for _, rec := range s.records {
		if len(out) >= limit {
			break
		}
		if rec.DeletedAt == nil && rec.expired(now) {
			clone := *rec
			out = append(out, &clone)
		}
	}

	return out, nil
}
