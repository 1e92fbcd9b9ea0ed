package contextmgr

import (
	"strings"
	"testing"

	"github.com/entityruntime/agentcore/model"
)

func TestStore_CaptureAndRehydrate_RestoresFullContent(t *testing.T) {
	t.Parallel()

	full := strings.Repeat("x", CompressionThreshold+1)
	msgs := []*model.Message{
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "c1", Name: "search"}}},
		model.NewToolResult("c1", "search", full),
	}

	store := NewStore()
	store.CaptureRound(msgs, 1)
	store.CompressOlderToolResults(msgs, 2, nil)

	if msgs[1].Text() == full {
		t.Fatalf("expected content to be compressed before rehydration")
	}

	store.Rehydrate(msgs)

	if msgs[1].Text() != full {
		t.Fatalf("expected rehydrated content to equal original full content")
	}
}

func TestDefaultSummarizer_SearchResponse(t *testing.T) {
	t.Parallel()

	content := `{"_type":"SearchResponse","value":[{"searchResultId":"1","title":"t","url":"u","content":"` +
		strings.Repeat("a", 400) + `"}]}`
	out := DefaultSummarizer("search", content)
	if !strings.Contains(out, `"_compressed":true`) {
		t.Fatalf("expected compressed marker, got %s", out)
	}
	if strings.Count(out, "a") > 203 {
		t.Fatalf("expected content truncated to ~200 chars, got %d a's", strings.Count(out, "a"))
	}
}

func TestDehydrateToolHistory_StripsSetGoalsAndCapsPairs(t *testing.T) {
	t.Parallel()

	var history []*model.Message
	history = append(history,
		&model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "goal-1", Name: "SetGoals"}}},
		model.NewToolResult("goal-1", "SetGoals", "ok"),
	)
	for i := 0; i < 15; i++ {
		id := "call"
		history = append(history,
			&model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: id, Name: "search"}}},
			model.NewToolResult(id, "search", "result"),
		)
	}

	pairs := DehydrateToolHistory(history, 0)

	for _, m := range pairs {
		for _, tc := range m.ToolCalls {
			if tc.Name == "SetGoals" {
				t.Fatalf("expected SetGoals calls stripped")
			}
		}
	}
	assistantCount := 0
	for _, m := range pairs {
		if m.Role == model.RoleAssistant {
			assistantCount++
		}
	}
	if assistantCount > MaxDehydratedPairs {
		t.Fatalf("expected at most %d pairs, got %d", MaxDehydratedPairs, assistantCount)
	}
}
