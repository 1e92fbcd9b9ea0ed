package contextmgr

import (
	"testing"

	"github.com/entityruntime/agentcore/model"
)

func assistantWithCalls(calls ...model.ToolCall) *model.Message {
	return &model.Message{Role: model.RoleAssistant, ToolCalls: calls}
}

func toolResult(id, text string) *model.Message {
	return &model.Message{Role: model.RoleTool, ToolCallID: id, Parts: []model.Part{model.TextPart{Text: text}}}
}

func TestRebuildTurnParity_ReordersOutOfOrderResults(t *testing.T) {
	t.Parallel()

	assistant := assistantWithCalls(
		model.ToolCall{ID: "call-1", Name: "a"},
		model.ToolCall{ID: "call-2", Name: "b"},
	)
	messages := []*model.Message{
		userTurn("go"),
		assistant,
		toolResult("call-2", "second"),
		toolResult("call-1", "first"),
	}

	got := RebuildTurnParity(messages)

	if len(got) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(got))
	}
	if got[2].ToolCallID != "call-1" || got[3].ToolCallID != "call-2" {
		t.Fatalf("expected call-1 then call-2 immediately after the assistant turn, got %q then %q", got[2].ToolCallID, got[3].ToolCallID)
	}
}

func TestRebuildTurnParity_DropsDuplicateToolResponse(t *testing.T) {
	t.Parallel()

	assistant := assistantWithCalls(model.ToolCall{ID: "call-1", Name: "a"})
	messages := []*model.Message{
		assistant,
		toolResult("call-1", "first"),
		toolResult("call-1", "duplicate"),
	}

	got := RebuildTurnParity(messages)

	count := 0
	for _, m := range got {
		if m.Role == model.RoleTool && m.ToolCallID == "call-1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one tool result for call-1, got %d", count)
	}
}

func TestRebuildTurnParity_LeavesUnmatchedToolCallInPlace(t *testing.T) {
	t.Parallel()

	assistant := assistantWithCalls(model.ToolCall{ID: "call-missing", Name: "a"})
	messages := []*model.Message{assistant}

	got := RebuildTurnParity(messages)

	if len(got) != 1 {
		t.Fatalf("expected the assistant message to pass through unchanged, got %d messages", len(got))
	}
}

func TestRebuildTurnParity_EmptyInputReturnsEmpty(t *testing.T) {
	t.Parallel()

	got := RebuildTurnParity(nil)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d messages", len(got))
	}
}
