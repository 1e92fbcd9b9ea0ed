package contextmgr

import "github.com/entityruntime/agentcore/model"

// RebuildTurnParity reorders messages so that every assistant message
// carrying tool_calls is immediately followed by its matching tool-result
// messages, in the same order the tool_calls were declared. Several
// providers reject a transcript where a tool_use block isn't immediately
// paired with its tool_result (or the pairing order doesn't match): the
// replan and continuation paths in the executor's loop can append a tool
// round's results in dispatch-completion order, which does not always
// match declaration order once replies race. RebuildTurnParity restores
// provider-precise ordering without discarding or re-summarizing any
// message; any tool_call left without a matching response is left as-is
// (dispatch guarantees a response is always recorded, even if synthetic).
func RebuildTurnParity(messages []*model.Message) []*model.Message {
	if len(messages) == 0 {
		return messages
	}

	byToolCallID := make(map[string]*model.Message)
	for _, m := range messages {
		if m.Role == model.RoleTool && m.ToolCallID != "" {
			if _, exists := byToolCallID[m.ToolCallID]; !exists {
				byToolCallID[m.ToolCallID] = m
			}
		}
	}

	placed := make(map[string]bool)
	out := make([]*model.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleTool {
			if placed[m.ToolCallID] {
				continue
			}
			out = append(out, m)
			placed[m.ToolCallID] = true
			continue
		}

		out = append(out, m)
		if m.Role != model.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		for _, tc := range m.ToolCalls {
			if placed[tc.ID] {
				continue
			}
			resp, ok := byToolCallID[tc.ID]
			if !ok {
				continue
			}
			out = append(out, resp)
			placed[tc.ID] = true
		}
	}
	return out
}
