package hooks

import (
	"context"
	"fmt"

	"github.com/entityruntime/agentcore/stream"
)

// StreamSubscriber translates bus events into user-visible progress events,
// so the executor and dispatcher can publish domain events without knowing
// about the wire-level Publisher at all (§4.5 consumes §4.3/§4.2 events).
type StreamSubscriber struct {
	Publisher stream.Publisher
}

// NewStreamSubscriber constructs a StreamSubscriber over pub.
func NewStreamSubscriber(pub stream.Publisher) *StreamSubscriber {
	return &StreamSubscriber{Publisher: pub}
}

// HandleEvent implements Subscriber. It never returns an error: a
// publishing failure must not abort the bus fan-out for other subscribers
// (memory recording, NDJSON logging) reacting to the same event.
func (s *StreamSubscriber) HandleEvent(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case ToolStartEvent:
		if e.Message == "" {
			return nil
		}
		_ = s.Publisher.Publish(ctx, stream.ProgressEvent{
			RequestID: e.ReqID,
			Progress:  0.5,
			Info:      fmt.Sprintf("%s: %s", e.ToolName, e.Message),
		})
	case ToolFinishEvent:
		if e.Success || e.ErrorText == "" {
			return nil
		}
		_ = s.Publisher.Publish(ctx, stream.ProgressEvent{
			RequestID: e.ReqID,
			Progress:  0.5,
			Info:      fmt.Sprintf("%s failed: %s", e.ToolName, e.ErrorText),
		})
	case PlanCreatedEvent:
		_ = s.Publisher.Publish(ctx, stream.ProgressEvent{
			RequestID: e.ReqID,
			Progress:  0.5,
			Info:      fmt.Sprintf("planning: %s", e.Goal),
		})
	case PlanReplanEvent:
		_ = s.Publisher.Publish(ctx, stream.ProgressEvent{
			RequestID: e.ReqID,
			Progress:  0.5,
			Info:      fmt.Sprintf("replanning (%d): %s", e.ReplanCount, e.Goal),
		})
	}
	return nil
}
