package transcript

import (
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryStore keeps records in a process local map. It is safe for
// concurrent use and returns copies, so callers cannot mutate stored logs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

// Save stores a copy of rec, replacing any record with the same id.
func (s *InMemoryStore) Save(_ context.Context, rec Record) error {
	rec = Normalize(rec)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = clone(rec)
	return nil
}

// Get returns the record with the given id.
func (s *InMemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return clone(rec), nil
}

// List returns records newest first.
func (s *InMemoryStore) List(_ context.Context, pipeline string, limit int) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if pipeline == "" || rec.Pipeline == pipeline {
			out = append(out, clone(rec))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Prune drops records older than olderThan.
func (s *InMemoryStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.records {
		if rec.CreatedAt.Before(olderThan) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

func clone(rec Record) Record {
	rec.Messages = slices.Clone(rec.Messages)
	return rec
}
