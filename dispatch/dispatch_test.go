package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/entityruntime/agentcore/hooks"
	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/tools"
)

func echoHandle(name string) *Handle {
	return &Handle{
		Definition: tools.Definition{Name: name},
		Invoke: func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"echo": args}, nil
		},
	}
}

func TestDispatchRound_DuplicateCallUsesCache(t *testing.T) {
	t.Parallel()

	calls := 0
	handle := &Handle{
		Definition: tools.Definition{Name: "search"},
		Invoke: func(_ context.Context, _ map[string]any) (any, error) {
			calls++
			return map[string]any{"result": "fresh"}, nil
		},
	}
	resolved := map[string]*Handle{"search": handle}
	d := New(hooks.NewBus())
	var p model.Plan

	args := `{"query":"x"}`
	first := []model.ToolCall{{ID: "c1", Name: "search", Arguments: args}}
	second := []model.ToolCall{{ID: "c2", Name: "search", Arguments: args}}

	if _, err := d.DispatchRound(context.Background(), "req-1", first, resolved, &p); err != nil {
		t.Fatalf("first round error: %v", err)
	}
	out, err := d.DispatchRound(context.Background(), "req-1", second, resolved, &p)
	if err != nil {
		t.Fatalf("second round error: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected tool invoked exactly once, got %d", calls)
	}
	found := false
	for _, m := range out.Messages {
		if m.Role == model.RoleTool && m.ToolCallID == "c2" {
			if m.Text() == "" {
				t.Fatalf("expected cached duplicate response, got empty")
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a tool response for duplicate call c2")
	}
}

func TestDispatchRound_InvalidArgumentsJSON(t *testing.T) {
	t.Parallel()

	resolved := map[string]*Handle{"search": echoHandle("search")}
	d := New(hooks.NewBus())
	var p model.Plan

	calls := []model.ToolCall{{ID: "c1", Name: "search", Arguments: "not json"}}
	out, err := d.DispatchRound(context.Background(), "req-1", calls, resolved, &p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stats.FailedCount != 1 {
		t.Fatalf("expected 1 failed call, got %d", out.Stats.FailedCount)
	}
	var foundMsg string
	for _, m := range out.Messages {
		if m.Role == model.RoleTool {
			foundMsg = m.Text()
		}
	}
	if foundMsg != "Invalid tool call structure: missing function arguments" {
		t.Fatalf("unexpected tool response: %q", foundMsg)
	}
}

func TestDispatchRound_SanitizesReservedArguments(t *testing.T) {
	t.Parallel()

	var seen map[string]any
	handle := &Handle{
		Definition: tools.Definition{Name: "search"},
		Invoke: func(_ context.Context, args map[string]any) (any, error) {
			seen = args
			return map[string]any{"ok": true}, nil
		},
	}
	resolved := map[string]*Handle{"search": handle}
	d := New(hooks.NewBus())
	var p model.Plan

	raw, _ := json.Marshal(map[string]any{"query": "x", "entityId": "should-not-pass", "primaryModel": "should-not-pass"})
	calls := []model.ToolCall{{ID: "c1", Name: "search", Arguments: string(raw)}}
	if _, err := d.DispatchRound(context.Background(), "req-1", calls, resolved, &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := seen["entityId"]; ok {
		t.Fatalf("expected entityId stripped from forwarded arguments")
	}
	if _, ok := seen["primaryModel"]; ok {
		t.Fatalf("expected primaryModel stripped from forwarded arguments")
	}
	if seen["query"] != "x" {
		t.Fatalf("expected non-reserved argument preserved, got %v", seen["query"])
	}
}

func TestDispatchRound_SetGoalsDoesNotConsumeBudget(t *testing.T) {
	t.Parallel()

	d := New(hooks.NewBus())
	var p model.Plan

	args, _ := json.Marshal(map[string]any{"goal": "find X", "steps": []string{"a", "b"}})
	calls := []model.ToolCall{{ID: "g1", Name: "SetGoals", Arguments: string(args)}}
	out, err := d.DispatchRound(context.Background(), "req-1", calls, map[string]*Handle{}, &p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.BudgetUsed != 0 {
		t.Fatalf("expected SetGoals to not consume budget, got %d", out.BudgetUsed)
	}
	if p.Goal != "find X" {
		t.Fatalf("expected plan to be recorded, got %+v", p)
	}
}

func TestDispatchRound_MissingToolNameForcesBudgetExhaustion(t *testing.T) {
	t.Parallel()

	d := New(hooks.NewBus())
	var p model.Plan

	calls := []model.ToolCall{{ID: "c1", Name: ""}}
	out, err := d.DispatchRound(context.Background(), "req-1", calls, map[string]*Handle{}, &p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.BudgetExhausted {
		t.Fatalf("expected budget force-exhausted for missing tool name")
	}
}
