// Package inmem is a process-wide (not per-request) ToolCallCache backend,
// useful for tests that exercise the toolcache.Backend contract without a
// Redis dependency.
package inmem

import (
	"context"
	"sync"
)

// Store implements toolcache.Backend in memory.
type Store struct {
	mu      sync.Mutex
	entries map[string]string
}

// New constructs an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]string)}
}

// Get implements toolcache.Backend.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	return v, ok, nil
}

// Put implements toolcache.Backend.
func (s *Store) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}
