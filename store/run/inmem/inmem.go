// Package inmem is the default in-process run.Store: a map with no
// durability across restarts.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/entityruntime/agentcore/store/run"
)

// Store implements run.Store in memory. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]run.Record
}

// New constructs an empty Store.
func New() *Store {
	return &Store{records: make(map[string]run.Record)}
}

// Upsert implements run.Store.
func (s *Store) Upsert(_ context.Context, r run.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[r.RequestID]; ok && r.StartedAt.IsZero() {
		r.StartedAt = existing.StartedAt
	} else if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	s.records[r.RequestID] = r
	return nil
}

// Load implements run.Store.
func (s *Store) Load(_ context.Context, requestID string) (run.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[requestID]
	if !ok {
		return run.Record{}, run.ErrNotFound
	}
	return r, nil
}
