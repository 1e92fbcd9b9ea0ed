// Package contextmgr implements the ContextManager (§4.4): turn-based
// windowing, per-round tool-result dehydration and compression, default
// summarization, rehydration before synthesis, and token-threshold
// context-window compression.
package contextmgr

import (
	"encoding/json"

	"github.com/entityruntime/agentcore/model"
)

// DefaultWindowTurns is the default N passed to SliceByTurns.
const DefaultWindowTurns = 10

// SliceByTurns keeps the last n turns of messages, where a turn begins at
// each user-role message. It walks backward counting user messages and
// slices at the nth one found, then drops any tool-response whose matching
// assistant tool_call fell outside the kept window. It is idempotent:
// slicing an already-sliced window with the same n returns it unchanged.
func SliceByTurns(messages []*model.Message, n int) []*model.Message {
	if n <= 0 || len(messages) == 0 {
		return model.CloneMessages(messages)
	}
	start := 0
	seen := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			seen++
			if seen == n {
				start = i
				break
			}
		}
	}
	normalized := make([]*model.Message, len(messages)-start)
	for i, m := range messages[start:] {
		clone := m.Clone()
		for j, tc := range clone.ToolCalls {
			clone.ToolCalls[j].Arguments = normalizeToolCallArguments(tc.Arguments)
		}
		normalized[i] = clone
	}
	return filterOrphanedToolResponses(normalized)
}

// filterOrphanedToolResponses drops any tool-role message whose ToolCallID
// does not correspond to a tool_call emitted by an earlier assistant message
// in the same slice — the window boundary can otherwise split a pair.
func filterOrphanedToolResponses(messages []*model.Message) []*model.Message {
	known := make(map[string]bool)
	out := make([]*model.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleTool {
			if !known[m.ToolCallID] {
				continue
			}
		}
		out = append(out, m)
		if m.Role == model.RoleAssistant {
			for _, tc := range m.ToolCalls {
				known[tc.ID] = true
			}
		}
	}
	return out
}

// toolCallIndex locates the index of the assistant message that issued
// toolCallID, or -1 if none is found.
func toolCallIndex(messages []*model.Message, toolCallID string) int {
	for i, m := range messages {
		if m.Role != model.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.ID == toolCallID {
				return i
			}
		}
	}
	return -1
}

// normalizeToolCallArguments is a defensive pass for transports that
// serialize tool_call argument payloads as JSON strings rather than raw
// objects; downstream consumers (dehydration, compression, windowing) all
// rely on the normalized object form.
func normalizeToolCallArguments(raw string) string {
	if len(raw) == 0 {
		return "{}"
	}
	var probe any
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return raw
	}
	if s, ok := probe.(string); ok {
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return s
		}
	}
	return raw
}
