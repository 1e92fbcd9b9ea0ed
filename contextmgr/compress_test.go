package contextmgr

import (
	"context"
	"strings"
	"testing"

	"github.com/entityruntime/agentcore/model"
)

func TestCompressWindow_NoopBelowThreshold(t *testing.T) {
	t.Parallel()

	msgs := []*model.Message{userTurn("hi")}
	got, err := CompressWindow(context.Background(), msgs, DefaultModelContextLimit, nil)
	if err != nil {
		t.Fatalf("CompressWindow error: %v", err)
	}
	if len(got) != len(msgs) {
		t.Fatalf("expected no-op, got %d messages", len(got))
	}
}

func TestCompressWindow_PreservesOriginalQueryAndSystemMessages(t *testing.T) {
	t.Parallel()

	var msgs []*model.Message
	msgs = append(msgs, model.NewSystemText("system instructions"))
	msgs = append(msgs, userTurn("what is the weather"))
	for i := 0; i < 20; i++ {
		msgs = append(msgs,
			&model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "c", Name: "search", Arguments: strings.Repeat("a", 2000)}}},
			model.NewToolResult("c", "search", strings.Repeat("b", 2000)),
		)
	}

	got, err := CompressWindow(context.Background(), msgs, 1000, nil)
	if err != nil {
		t.Fatalf("CompressWindow error: %v", err)
	}

	if got[0].Role != model.RoleSystem {
		t.Fatalf("expected system message preserved first, got role %v", got[0].Role)
	}
	found := false
	for _, m := range got {
		if m.Role == model.RoleUser && m.Text() == "what is the weather" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected original user query preserved")
	}
}

func TestFindSafeSplitPoint_AdjustsForSplitToolCallPair(t *testing.T) {
	t.Parallel()

	msgs := []*model.Message{
		userTurn("turn"),
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "c1", Name: "search"}}},
		model.NewToolResult("c1", "search", "result"),
		{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: "ok"}}},
		userTurn("turn2"),
		{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: "ok2"}}},
	}

	split := findSafeSplitPoint(msgs, 2)
	for i := split; i < len(msgs); i++ {
		if msgs[i].Role == model.RoleTool {
			idx := toolCallIndex(msgs, msgs[i].ToolCallID)
			if idx < split {
				t.Fatalf("split point %d leaves tool response with call at %d outside window", split, idx)
			}
		}
	}
}
