package hooks

import "time"

// Base embeds the common RequestID/Timestamp fields every concrete event
// type carries.
type Base struct {
	ReqID string
	TS    time.Time
}

// RequestID implements Event.
func (b Base) RequestID() string { return b.ReqID }

// ToolStartEvent marks the user-visible start of a single tool invocation
// (§4.3 step 3), suppressed when the tool definition sets HideExecution.
type ToolStartEvent struct {
	Base
	ToolCallID string
	ToolName   string
	Icon       string
	Message    string
}

// ToolFinishEvent marks the user-visible completion of a tool invocation
// (§4.3 step 6).
type ToolFinishEvent struct {
	Base
	ToolCallID string
	ToolName   string
	Success    bool
	ErrorText  string
	Duration   time.Duration
}

// PlanCreatedEvent fires when a SetGoals call is accepted (§4.2 step 3).
type PlanCreatedEvent struct {
	Base
	Goal  string
	Steps []string
}

// PlanSkippedEvent fires when the gate is bypassed (pulse or nested depth).
type PlanSkippedEvent struct {
	Base
	Reason string
}

// PlanReplanEvent fires when synthesis issues a new SetGoals (§4.2 step 9).
type PlanReplanEvent struct {
	Base
	Goal        string
	Steps       []string
	ReplanCount int
}

// ToolRoundEvent summarizes one dispatcher round (§3 RoundStats).
type ToolRoundEvent struct {
	Base
	Round        int
	ToolCount    int
	FailedCount  int
	BudgetUsed   int
	BudgetTotal  int
	BudgetExhaust bool
}

// CompressionEvent fires when context-window compression runs (§4.4).
type CompressionEvent struct {
	Base
	ToolCallsCompressed int
	ResultsCompressed   int
	Err                 string
}

// MemoryRecordEvent fires after a MemoryRecorder persists a turn.
type MemoryRecordEvent struct {
	Base
	Kind string
}
