// Package modelplugin defines the Model plugin contract (§6) the executor
// consumes: a uniform call surface over streaming and non-streaming model
// backends, independent of any one provider's wire shape.
package modelplugin

import (
	"context"
	"encoding/json"

	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/stream"
)

// ReasoningEffort selects a provider's reasoning/thinking budget, when it
// supports one.
type ReasoningEffort string

const (
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
)

// ToolSchema is one entry of the OpenAI-shaped tool array the contract
// passes on every call (§6).
type ToolSchema struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

// ToolChoice selects how strongly the model is steered toward calling a
// tool.
type ToolChoice string

const ToolChoiceAuto ToolChoice = "auto"

// CallArgs is the uniform request shape every plugin implementation
// accepts (§6).
type CallArgs struct {
	Messages        []*model.Message
	Tools           []ToolSchema
	ToolChoice      ToolChoice
	Stream          bool
	ReasoningEffort ReasoningEffort
	ModelOverride   string
}

// Result is the non-streaming response shape (§6).
type Result struct {
	OutputText   string
	ToolCalls    []model.ToolCall
	Usage        *model.Usage
	FinishReason string
}

// Plugin is the consumed model-call surface. A call either returns a
// non-streaming Result or a stream.Handle, never both; Stream in CallArgs
// selects which.
type Plugin interface {
	// Call invokes the model. When args.Stream is true, result is nil and
	// handle is non-nil; otherwise the reverse.
	Call(ctx context.Context, args CallArgs) (result *Result, handle stream.Handle, err error)
	// GetModelMaxPromptTokens reports this plugin's context-window budget,
	// for ContextManager compression thresholds (§4.4).
	GetModelMaxPromptTokens() int
}
