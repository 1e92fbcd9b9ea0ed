// Package memory defines the consumed MemoryRecorder contract (§2): a
// long-term memory subsystem persists user/assistant turns after a request
// completes. The subsystem itself (continuity memory, narrative
// synthesis, vector stores) is out of scope (§1); only the narrow
// post-response recording surface lives here, generalized from the
// teacher's runtime/agent/memory event log down to this spec's
// single-turn-per-request shape.
package memory

import (
	"context"
	"time"

	"github.com/entityruntime/agentcore/model"
)

// EventType enumerates persisted memory event categories.
type EventType string

const (
	EventUserMessage      EventType = "user_message"
	EventAssistantMessage EventType = "assistant_message"
)

// Event is a single entry persisted to the memory subsystem.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Text      string
}

// Recorder persists a request's user/assistant turn once the request's
// final message is known (§2 "MemoryRecorder (consumed)"). Implementations
// must tolerate being called from the coordinator's completion path and
// must not block request completion on their own failures.
type Recorder interface {
	Record(ctx context.Context, entityID string, events ...Event) error
}

// NoopRecorder discards every event; the default when no long-term memory
// subsystem is wired.
type NoopRecorder struct{}

// Record implements Recorder.
func (NoopRecorder) Record(context.Context, string, ...Event) error { return nil }

// TurnEvents builds the standard user+assistant event pair recorded after
// a request completes.
func TurnEvents(userMessage string, assistant *model.Message, at time.Time) []Event {
	events := []Event{{Type: EventUserMessage, Timestamp: at, Text: userMessage}}
	if assistant != nil {
		events = append(events, Event{Type: EventAssistantMessage, Timestamp: at, Text: assistant.Text()})
	}
	return events
}
