// Package tools defines the ToolDefinition contract the Agent Executor
// consumes from an external ToolRegistry (§6), plus the default cost/timeout
// constants from §6's bit-exact constant table.
package tools

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Category partitions tools by how they are offered to an entity (§6
// ToolRegistry contract filters).
type Category string

const (
	// CategoryGeneral tools are offered to every invocation type.
	CategoryGeneral Category = "general"
	// CategorySystem tools are excluded from wildcard expansion but
	// included when explicitly listed for the entity.
	CategorySystem Category = "system"
	// CategoryPulse tools are only offered (and auto-injected) during pulse
	// invocations.
	CategoryPulse Category = "pulse"
)

const (
	// DefaultToolCost is applied when a ToolDefinition does not declare a
	// cost (§6 bit-exact constants).
	DefaultToolCost = 10
	// MinToolCost is the floor every non-plan tool call consumes, even when
	// a definition declares a lower (or zero/negative) cost (§3 invariant:
	// "max(1, declaredCost)").
	MinToolCost = 1
	// DefaultTimeoutMS is the per-call execution deadline used when a
	// ToolDefinition does not declare one.
	DefaultTimeoutMS = 120000
)

// Summarizer compresses a tool's full result content down to a short
// summary for context-window compression (§4.4). When a ToolDefinition does
// not supply one, the context manager falls back to its default summarizer.
type Summarizer func(fullContent string) string

// Definition describes a single tool as advertised to the model: its name,
// JSON-schema parameters, execution policy, and optional display/compression
// hooks (§3 ToolDefinition).
type Definition struct {
	// Name is the tool name as advertised to the model. Matching against a
	// model-emitted ToolCall.Name is case-insensitive.
	Name string
	// Description is shown to the model alongside Parameters.
	Description string
	// ParametersSchema is the raw JSON-schema document for the tool's
	// arguments, compiled once via CompileSchema.
	ParametersSchema []byte
	// Category controls whether the tool is offered for a given invocation
	// type (§6).
	Category Category
	// Cost is the budget charged per call; zero falls back to
	// DefaultToolCost, and any value below MinToolCost is raised to it.
	Cost int
	// TimeoutMS bounds a single invocation; zero falls back to
	// DefaultTimeoutMS.
	TimeoutMS int
	// HideExecution suppresses the user-visible tool.start/tool.finish
	// progress events for this tool.
	HideExecution bool
	// Summarize compresses full tool-result content for context
	// compression (§4.4). Optional.
	Summarize Summarizer
	// Icon is surfaced on the user-visible tool.start event.
	Icon string
	// VoiceFallback is the spoken-style start message used when the model
	// does not supply its own `userMessage` argument.
	VoiceFallback string

	compiled *jsonschema.Schema
}

// EffectiveCost returns the budget charge for one call to this tool,
// applying the default/floor rules from §3 and §6.
func (d *Definition) EffectiveCost() int {
	if d == nil || d.Cost <= 0 {
		if d == nil {
			return DefaultToolCost
		}
		if d.Cost == 0 {
			return DefaultToolCost
		}
	}
	c := d.Cost
	if c < MinToolCost {
		c = MinToolCost
	}
	return c
}

// EffectiveTimeoutMS returns the invocation deadline in milliseconds,
// applying the §6 default.
func (d *Definition) EffectiveTimeoutMS() int {
	if d == nil || d.TimeoutMS <= 0 {
		return DefaultTimeoutMS
	}
	return d.TimeoutMS
}

// CompileSchema compiles ParametersSchema once and caches the result. It is
// safe to call repeatedly; subsequent calls are no-ops once a schema is
// cached. Tools without a declared schema are treated as schema-less
// (ValidateArguments always succeeds).
func (d *Definition) CompileSchema() error {
	if d == nil || d.compiled != nil || len(d.ParametersSchema) == 0 {
		return nil
	}
	c := jsonschema.NewCompiler()
	url := "mem://" + strings.ToLower(d.Name) + ".schema.json"
	var doc any
	if err := jsonschema.UnmarshalJSON(strings.NewReader(string(d.ParametersSchema)), &doc); err != nil {
		return fmt.Errorf("tool %q: parse schema: %w", d.Name, err)
	}
	if err := c.AddResource(url, doc); err != nil {
		return fmt.Errorf("tool %q: add schema resource: %w", d.Name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("tool %q: compile schema: %w", d.Name, err)
	}
	d.compiled = schema
	return nil
}

// ValidateArguments validates decoded JSON arguments against the tool's
// compiled parameter schema. A nil/empty schema always validates. Callers
// should decode the model's raw arguments string into `any` (e.g. via
// encoding/json into map[string]any) before calling this.
func (d *Definition) ValidateArguments(args any) error {
	if d == nil || d.compiled == nil {
		return nil
	}
	return d.compiled.Validate(args)
}
