package contextmgr

import (
	"testing"

	"github.com/entityruntime/agentcore/model"
)

func userTurn(text string) *model.Message { return model.NewUserText(text) }

func TestSliceByTurns_KeepsLastNTurns(t *testing.T) {
	t.Parallel()

	var msgs []*model.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, userTurn("turn"))
		msgs = append(msgs, &model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: "reply"}}})
	}

	got := SliceByTurns(msgs, 2)

	userCount := 0
	for _, m := range got {
		if m.Role == model.RoleUser {
			userCount++
		}
	}
	if userCount != 2 {
		t.Fatalf("expected 2 user turns kept, got %d (len=%d)", userCount, len(got))
	}
}

func TestSliceByTurns_Idempotent(t *testing.T) {
	t.Parallel()

	var msgs []*model.Message
	for i := 0; i < 8; i++ {
		msgs = append(msgs, userTurn("turn"))
	}

	once := SliceByTurns(msgs, 3)
	twice := SliceByTurns(once, 3)

	if len(once) != len(twice) {
		t.Fatalf("not idempotent: len(once)=%d len(twice)=%d", len(once), len(twice))
	}
}

func TestSliceByTurns_FiltersOrphanedToolResponses(t *testing.T) {
	t.Parallel()

	msgs := []*model.Message{
		userTurn("old turn"),
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "call-1", Name: "search"}}},
		model.NewToolResult("call-1", "search", "result"),
		userTurn("new turn"),
		{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: "ok"}}},
	}

	got := SliceByTurns(msgs, 1)

	for _, m := range got {
		if m.Role == model.RoleTool {
			t.Fatalf("expected orphaned tool response to be filtered, found %+v", m)
		}
	}
}
