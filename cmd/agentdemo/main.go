// Command agentdemo wires a Coordinator with a minimal tool registry and
// runs one chat turn end to end, the way cmd/demo wires the teacher's
// runtime for a single hello-world turn.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/entityruntime/agentcore/coordinator"
	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/modelplugin"
	"github.com/entityruntime/agentcore/modelplugin/anthropic"
	"github.com/entityruntime/agentcore/stream"
	"github.com/entityruntime/agentcore/tools"
	"github.com/entityruntime/agentcore/toolregistry"
)

// stubPlugin answers every call with a fixed reply, standing in for a real
// model endpoint when no API key is configured.
type stubPlugin struct{}

func (stubPlugin) Call(_ context.Context, args modelplugin.CallArgs) (*modelplugin.Result, stream.Handle, error) {
	return &modelplugin.Result{OutputText: "Hello from agentcore! (no model plugin configured; set ANTHROPIC_API_KEY to talk to a real model)"}, nil, nil
}

func (stubPlugin) GetModelMaxPromptTokens() int { return 128000 }

func buildRegistry() *toolregistry.Registry {
	reg := toolregistry.New()

	clockDef := tools.Definition{
		Name:             "clock.now",
		Description:      "Returns the current UTC time.",
		ParametersSchema: []byte(`{"type":"object","properties":{}}`),
		Category:         tools.CategoryGeneral,
		Cost:             1,
	}
	_ = clockDef.CompileSchema()
	reg.Register(&toolregistry.Handle{
		Definition: clockDef,
		Invoke: func(context.Context, map[string]any) (any, error) {
			return map[string]any{"now": time.Now().UTC().Format(time.RFC3339)}, nil
		},
	})

	echoDef := tools.Definition{
		Name:             "echo.say",
		Description:      "Echoes the provided text back.",
		ParametersSchema: []byte(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
		Category:         tools.CategoryGeneral,
		Cost:             1,
	}
	_ = echoDef.CompileSchema()
	reg.Register(&toolregistry.Handle{
		Definition: echoDef,
		Invoke: func(_ context.Context, args map[string]any) (any, error) {
			text, _ := args["text"].(string)
			return map[string]any{"echoed": text}, nil
		},
	})

	return reg
}

func buildPrimary() modelplugin.Plugin {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return stubPlugin{}
	}
	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	plugin, err := anthropic.NewFromAPIKey(apiKey, model)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentdemo: falling back to stub plugin:", err)
		return stubPlugin{}
	}
	return plugin
}

func main() {
	ctx := context.Background()

	registry := buildRegistry()
	primary := buildPrimary()
	coord := coordinator.New(registry, primary)

	req := &model.Request{
		EntityID:       "demo-entity",
		UserMessage:    "What time is it right now?",
		InvocationType: model.InvocationChat,
	}
	cfg := toolregistry.EntityConfig{
		EntityID:  "demo-entity",
		ToolNames: []string{"clock.now", "echo.say"},
	}

	id, msg, err := coord.Submit(ctx, req, cfg)
	if err != nil {
		panic(err)
	}
	fmt.Println("RequestID:", id)
	fmt.Println("Assistant:", msg.Text())
}
