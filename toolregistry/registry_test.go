package toolregistry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityruntime/agentcore/tools"
	"github.com/entityruntime/agentcore/toolregistry"
)

func handle(name string, category tools.Category) *toolregistry.Handle {
	return &toolregistry.Handle{
		Definition: tools.Definition{
			Name:             name,
			Description:      "test tool " + name,
			ParametersSchema: []byte(`{"type":"object"}`),
			Category:         category,
		},
		Invoke: func(context.Context, map[string]any) (any, error) {
			return map[string]any{"tool": name}, nil
		},
	}
}

func TestGetToolsForEntity_ExactNameMatchIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	reg := toolregistry.New()
	reg.Register(handle("Search.Web", tools.CategoryGeneral))

	resolved := reg.GetToolsForEntity(toolregistry.EntityConfig{ToolNames: []string{"SEARCH.WEB"}}, toolregistry.InvocationChat)
	_, ok := resolved.ByName["search.web"]
	assert.True(t, ok)
}

func TestGetToolsForEntity_WildcardExpandsMatchingPrefixExcludingSystem(t *testing.T) {
	t.Parallel()

	reg := toolregistry.New()
	reg.Register(handle("search.web", tools.CategoryGeneral))
	reg.Register(handle("search.files", tools.CategoryGeneral))
	reg.Register(handle("search.admin", tools.CategorySystem))
	reg.Register(handle("other.tool", tools.CategoryGeneral))

	resolved := reg.GetToolsForEntity(toolregistry.EntityConfig{ToolNames: []string{"search.*"}}, toolregistry.InvocationChat)

	assert.Contains(t, resolved.ByName, "search.web")
	assert.Contains(t, resolved.ByName, "search.files")
	assert.NotContains(t, resolved.ByName, "search.admin")
	assert.NotContains(t, resolved.ByName, "other.tool")
}

func TestGetToolsForEntity_PulseToolsOnlyOfferedDuringPulseInvocation(t *testing.T) {
	t.Parallel()

	reg := toolregistry.New()
	reg.Register(handle("pulse.digest", tools.CategoryPulse))
	reg.Register(handle("general.tool", tools.CategoryGeneral))

	chatResolved := reg.GetToolsForEntity(toolregistry.EntityConfig{ToolNames: []string{"pulse.digest", "general.tool"}}, toolregistry.InvocationChat)
	assert.NotContains(t, chatResolved.ByName, "pulse.digest")
	assert.Contains(t, chatResolved.ByName, "general.tool")

	pulseResolved := reg.GetToolsForEntity(toolregistry.EntityConfig{ToolNames: []string{"general.tool"}}, toolregistry.InvocationPulse)
	assert.Contains(t, pulseResolved.ByName, "pulse.digest", "pulse tools auto-inject even when absent from cfg")
	assert.Contains(t, pulseResolved.ByName, "general.tool")
}

func TestGetToolsForEntity_OpenAIFormatReflectsSelection(t *testing.T) {
	t.Parallel()

	reg := toolregistry.New()
	reg.Register(handle("echo.say", tools.CategoryGeneral))

	resolved := reg.GetToolsForEntity(toolregistry.EntityConfig{ToolNames: []string{"echo.say"}}, toolregistry.InvocationChat)
	require.Len(t, resolved.OpenAIFormat, 1)
	fn, ok := resolved.OpenAIFormat[0]["function"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "echo.say", fn["name"])
}

func TestCallTool_UnknownNameReturnsError(t *testing.T) {
	t.Parallel()

	_, err := toolregistry.CallTool(context.Background(), "missing.tool", nil, map[string]*toolregistry.Handle{})
	assert.Error(t, err)
}

func TestCallTool_InvokesMatchedHandleCaseInsensitively(t *testing.T) {
	t.Parallel()

	entityTools := map[string]*toolregistry.Handle{
		"echo.say": handle("echo.say", tools.CategoryGeneral),
	}
	result, err := toolregistry.CallTool(context.Background(), "Echo.Say", map[string]any{"text": "hi"}, entityTools)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tool": "echo.say"}, result)
}
