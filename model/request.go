package model

// InvocationType distinguishes an ordinary chat turn from a pulse-triggered
// (proactive, scheduled) invocation (§3).
type InvocationType string

const (
	// InvocationChat is an ordinary user-initiated turn.
	InvocationChat InvocationType = "chat"
	// InvocationPulse is a scheduled/proactive wake invocation.
	InvocationPulse InvocationType = "pulse"
)

// ResultData is the pathway-scoped result data accumulated over a request's
// lifetime and attached to its terminal progress event (§3, §6).
type ResultData struct {
	Citations   []string
	Usage       *Usage
	ToolHistory []*Message
	ToolsUsed   []string
}

// Usage records token accounting reported by a model plugin.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Request is the unit of work the RequestCoordinator accepts and the
// AgentExecutor processes (§3). Its lifecycle runs from client submission
// to the terminal progress=1 event.
type Request struct {
	// ID uniquely identifies this request.
	ID string
	// RootID is the top-level request this one was spawned from, for
	// nested sub-pathway calls; empty for a root request.
	RootID string
	// EntityID names the entity (agent persona/configuration) this request
	// is addressed to.
	EntityID string
	// UserMessage is the new user-authored text for this turn.
	UserMessage string
	// History is the inbound conversation, oldest first, not including
	// UserMessage.
	History []*Message
	// Stream requests that the final synthesis be streamed token-by-token
	// to the subscriber rather than delivered as one terminal event.
	Stream bool
	// InvocationType selects chat vs. pulse tool-registry filtering and
	// planning-gate behavior.
	InvocationType InvocationType
	// CallbackDepth counts nested ToolCallback recursion (§4.6 gate skip
	// rule); zero at the root.
	CallbackDepth int
	// Result accumulates citations/usage/tool-history across the request's
	// lifetime for attachment to the terminal event.
	Result ResultData
}
