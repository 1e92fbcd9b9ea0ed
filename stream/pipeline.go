package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/entityruntime/agentcore/model"
)

// NoDataTimeout is the §6 bit-exact constant: a stream with no SSE data for
// this long is destroyed and a terminal error event is published.
const NoDataTimeout = 5 * time.Minute

// RawEvent is one parsed SSE frame as handed to the pipeline by a model
// plugin's streaming handle. Data carries the event's JSON payload exactly
// as the plugin surfaced it; the pipeline's wire-shape heuristics live in
// this package precisely so individual plugins stay out of scope (§1).
type RawEvent struct {
	Data json.RawMessage
}

// Handle is the streaming half of the §6 model plugin contract: an event
// source of SSE-shaped events. Events must close when the underlying
// transport ends.
type Handle interface {
	Events() <-chan RawEvent
	Close() error
	// ToolCalls returns the tool calls the underlying plugin accumulated
	// over the stream, valid once Events has closed. A plugin that never
	// intercepts tool calls mid-stream returns nil.
	ToolCalls() []model.ToolCall
}

// Result summarizes a drained stream for the caller (§4.2's "drain any
// streaming callbacks").
type Result struct {
	// Text is the accumulated assistant text across all deltas.
	Text string
	// ToolCallbackInvoked is true once a plugin surfaces
	// toolCallbackInvoked=true mid-stream, meaning the plugin intercepted
	// tool-call intents itself and does not expect to emit its own terminal
	// completion.
	ToolCallbackInvoked bool
	// CompletionSent records whether a progress=1 event was already
	// published while draining (either because the stream signaled its own
	// completion, or because of the no-tool-callback/no-error fallback on
	// stream close).
	CompletionSent bool
	// ToolCalls carries any tool calls the plugin accumulated mid-stream,
	// populated once the stream closes normally.
	ToolCalls []model.ToolCall
}

// Pipeline drains one model stream for a single request, publishing
// non-terminal progress events as it goes and honoring the completion
// guarantees of §4.5.
type Pipeline struct {
	Publisher Publisher
	RequestID string
}

// Drain consumes handle until it closes, ctx is canceled, or no data
// arrives for NoDataTimeout. It never returns before publishing exactly the
// progress events required by §4.5 — including, on an inactivity timeout, a
// terminal error event.
func (p *Pipeline) Drain(ctx context.Context, handle Handle) (Result, error) {
	var res Result
	events := handle.Events()
	timer := time.NewTimer(NoDataTimeout)
	defer timer.Stop()
	defer handle.Close()

	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-timer.C:
			_ = p.Publisher.PublishTerminal(ctx, ProgressEvent{
				RequestID: p.RequestID,
				Progress:  1,
				Data:      "",
				Error:     "stream timed out after 5 minutes with no data",
			})
			res.CompletionSent = true
			return res, fmt.Errorf("stream: no data for %s", NoDataTimeout)
		case ev, ok := <-events:
			if !ok {
				res.ToolCalls = handle.ToolCalls()
				if !res.CompletionSent && !res.ToolCallbackInvoked {
					// Stream closed without an explicit completion and
					// without a tool-callback handoff: §4.5 requires a
					// fallback terminal event with empty data.
					_ = p.Publisher.PublishTerminal(ctx, ProgressEvent{
						RequestID: p.RequestID,
						Progress:  1,
						Data:      "",
					})
					res.CompletionSent = true
				}
				// If ToolCallbackInvoked, the executor owns the lifecycle:
				// no warning, no publish.
				return res, nil
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(NoDataTimeout)

			delta := parseDelta(ev.Data)
			res.Text += delta.textDelta
			if delta.toolCallbackInvoked {
				res.ToolCallbackInvoked = true
			}

			progress := 0.5
			if delta.terminal {
				progress = 1
			}
			errText := delta.errorText
			_ = p.Publisher.Publish(ctx, ProgressEvent{
				RequestID: p.RequestID,
				Progress:  progress,
				Data:      string(ev.Data),
				Error:     errText,
			})
			if delta.terminal {
				res.CompletionSent = true
				res.ToolCalls = handle.ToolCalls()
				return res, nil
			}
		}
	}
}

type parsedDelta struct {
	textDelta           string
	toolCallbackInvoked bool
	terminal            bool
	errorText           string
	recognized          bool
}

// parseDelta extracts a text delta, a tool-callback signal, a terminal
// marker, and an error from a raw SSE JSON frame. It recognizes the
// OpenAI-shaped `choices[].delta.content` / `[DONE]` convention and the
// Anthropic-shaped `{"type":"content_block_delta","delta":{"text":...}}` /
// `{"type":"message_stop"}` convention, since those are the two shapes the
// bundled model plugins (modelplugin/openai, modelplugin/anthropic) emit.
//
// Per the Open Question this spec resolves (SPEC_FULL.md §Open Questions
// item 1): any other JSON shape is treated as an opaque passthrough event —
// published to subscribers via Data, but not accumulated into Text and not
// treated as a tool-callback or terminal signal.
func parseDelta(raw json.RawMessage) parsedDelta {
	var generic struct {
		// Top-level plugin signal (§6): "plugin must surface
		// toolCallbackInvoked=true on the progress record".
		ToolCallbackInvoked bool `json:"toolCallbackInvoked"`
		Error               *struct {
			Message string `json:"message"`
		} `json:"error"`
		// Anthropic-shaped event.
		Type  string `json:"type"`
		Delta *struct {
			Text string `json:"text"`
		} `json:"delta"`
		// OpenAI-shaped event.
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return parsedDelta{}
	}
	out := parsedDelta{toolCallbackInvoked: generic.ToolCallbackInvoked}
	if generic.Error != nil {
		out.errorText = generic.Error.Message
		out.recognized = true
	}
	switch {
	case generic.Type == "message_stop":
		out.terminal = true
		out.recognized = true
	case generic.Type == "content_block_delta" && generic.Delta != nil:
		out.textDelta = generic.Delta.Text
		out.recognized = true
	case len(generic.Choices) > 0:
		out.recognized = true
		for _, c := range generic.Choices {
			out.textDelta += c.Delta.Content
			if c.FinishReason != nil && *c.FinishReason != "" {
				out.terminal = true
			}
		}
	}
	return out
}
