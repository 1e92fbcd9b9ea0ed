package memory

import (
	"context"
	"sync"
)

// InMemRecorder is a reference Recorder used by tests and local demos: it
// appends every event to a per-entity log with no external persistence.
type InMemRecorder struct {
	mu  sync.Mutex
	log map[string][]Event
}

// NewInMemRecorder constructs an empty InMemRecorder.
func NewInMemRecorder() *InMemRecorder {
	return &InMemRecorder{log: make(map[string][]Event)}
}

// Record implements Recorder.
func (r *InMemRecorder) Record(_ context.Context, entityID string, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log[entityID] = append(r.log[entityID], events...)
	return nil
}

// Events returns the recorded log for entityID, oldest first.
func (r *InMemRecorder) Events(entityID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.log[entityID]...)
}
