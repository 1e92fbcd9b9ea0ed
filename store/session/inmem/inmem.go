// Package inmem is the default in-process session.Store.
package inmem

import (
	"context"
	"sync"

	"github.com/entityruntime/agentcore/model"
)

// Store implements session.Store in memory. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	history map[string][]*model.Message
}

// New constructs an empty Store.
func New() *Store {
	return &Store{history: make(map[string][]*model.Message)}
}

// Append implements session.Store.
func (s *Store) Append(_ context.Context, entityID string, turns ...*model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[entityID] = append(s.history[entityID], model.CloneMessages(turns)...)
	return nil
}

// History implements session.Store.
func (s *Store) History(_ context.Context, entityID string) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneMessages(s.history[entityID]), nil
}
