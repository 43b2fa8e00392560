// Package memory keeps movies and run progress in-process for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/movie-ingest/internal/movie"
)

// MovieStore is an insert-if-absent map of records keyed by ID.
type MovieStore struct {
	mu      sync.RWMutex
	records map[string]movie.Record
}

// NewMovieStore creates an empty MovieStore.
func NewMovieStore() *MovieStore {
	return &MovieStore{records: make(map[string]movie.Record)}
}

// Upsert stores the record unless its ID is already present. The first write wins.
func (s *MovieStore) Upsert(_ context.Context, record movie.Record) (bool, error) {
	if !record.Persistable() {
		return false, fmt.Errorf("%w: %w", movie.ErrStoreFailed, movie.ErrMissingID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return false, nil
	}
	s.records[record.ID] = cloneRecord(record)
	return true, nil
}

// Get returns the stored record for id.
func (s *MovieStore) Get(_ context.Context, id string) (movie.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return movie.Record{}, fmt.Errorf("movie %q: %w", id, movie.ErrNotFound)
	}
	return cloneRecord(record), nil
}

// Count returns the number of stored records.
func (s *MovieStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func cloneRecord(r movie.Record) movie.Record {
	if r.Duration != nil {
		d := *r.Duration
		r.Duration = &d
	}
	return r
}
