// Package toolregistry implements the consumed ToolRegistry contract (§6):
// resolving which tools an entity exposes for a given invocation, and
// invoking a named tool against that set.
package toolregistry

import (
	"context"
	"fmt"
	"strings"

	"github.com/entityruntime/agentcore/tools"
)

// InvocationType distinguishes an ordinary chat turn from a pulse-triggered
// (proactive, scheduled) invocation; pulse-only tools and category filtering
// both key off this.
type InvocationType string

const (
	// InvocationChat is an ordinary user-initiated turn.
	InvocationChat InvocationType = "chat"
	// InvocationPulse is a scheduled/proactive wake invocation.
	InvocationPulse InvocationType = "pulse"
)

// EntityConfig names the tools an entity is configured with. Names ending
// in "*" are treated as a category wildcard (e.g. "search.*" expands to
// every registered tool whose name starts with "search.").
type EntityConfig struct {
	EntityID      string
	ToolNames     []string
	Instructions  string
}

// Handle pairs a tool Definition with its invocable function and an
// optional tool-specific summarizer for context compression.
type Handle struct {
	Definition tools.Definition
	Invoke     func(ctx context.Context, args map[string]any) (any, error)
	Summarize  tools.Summarizer
}

// Resolved is the result of resolving an entity's tool set for one
// invocation (§6 getToolsForEntity).
type Resolved struct {
	// ByName maps lowercased tool name to its Handle.
	ByName map[string]*Handle
	// OpenAIFormat is the tool schema array in the `{type:"function",
	// function:{...}}` shape the model plugin contract expects.
	OpenAIFormat []map[string]any
}

// Registry is the source of truth for every tool a deployment knows about.
// It is read-mostly at request time; registration happens at startup.
type Registry struct {
	all map[string]*Handle
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{all: make(map[string]*Handle)}
}

// Register adds h under its definition's lowercased name, overwriting any
// prior registration with the same name.
func (r *Registry) Register(h *Handle) {
	r.all[strings.ToLower(h.Definition.Name)] = h
}

// GetToolsForEntity implements the §6 getToolsForEntity contract: it
// resolves cfg's (possibly wildcarded) tool names against the registry,
// applies category filtering, and auto-injects pulse-category tools during
// pulse invocations even when absent from cfg.
func (r *Registry) GetToolsForEntity(cfg EntityConfig, invocationType InvocationType) Resolved {
	selected := make(map[string]*Handle)

	for _, raw := range cfg.ToolNames {
		name := strings.ToLower(raw)
		if strings.HasSuffix(name, "*") {
			prefix := strings.TrimSuffix(name, "*")
			for key, h := range r.all {
				if !strings.HasPrefix(key, prefix) {
					continue
				}
				if h.Definition.Category == tools.CategorySystem {
					// System tools are excluded from wildcard expansion; a
					// caller must list them explicitly.
					continue
				}
				if h.Definition.Category == tools.CategoryPulse && invocationType != InvocationPulse {
					continue
				}
				selected[key] = h
			}
			continue
		}
		h, ok := r.all[name]
		if !ok {
			continue
		}
		if h.Definition.Category == tools.CategoryPulse && invocationType != InvocationPulse {
			continue
		}
		selected[name] = h
	}

	if invocationType == InvocationPulse {
		for key, h := range r.all {
			if h.Definition.Category == tools.CategoryPulse {
				selected[key] = h
			}
		}
	}

	openai := make([]map[string]any, 0, len(selected))
	for _, h := range selected {
		openai = append(openai, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        h.Definition.Name,
				"description": h.Definition.Description,
				"parameters":  h.Definition.ParametersSchema,
			},
		})
	}

	return Resolved{ByName: selected, OpenAIFormat: openai}
}

// CallTool implements the §6 callTool contract: it looks up toolFunction
// (case-insensitive) in entityTools and invokes it with args.
func CallTool(ctx context.Context, toolFunction string, args map[string]any, entityTools map[string]*Handle) (any, error) {
	h, ok := entityTools[strings.ToLower(toolFunction)]
	if !ok {
		return nil, fmt.Errorf("toolregistry: tool %q not available to this entity", toolFunction)
	}
	return h.Invoke(ctx, args)
}
