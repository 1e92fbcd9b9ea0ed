// Package plan implements the planning-gate contract (§4.6): recognizing the
// SetGoals tool call, enforcing that tool-calling turns declare a plan, and
// rendering the plan as a todo list for the executor loop.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entityruntime/agentcore/model"
)

// ToolName is the reserved tool name the executor recognizes as a plan
// declaration. Matching is case-insensitive (§4.6).
const ToolName = "SetGoals"

// MaxGateRetries bounds how many times the executor re-prompts the primary
// model for a compliant (SetGoals-including) tool-calling turn before giving
// up and discarding the tool calls (§4.2 step 3, §6 constants).
const MaxGateRetries = 2

// Schema is the JSON-schema parameters document for the SetGoals tool,
// advertised alongside every entity's tool set on the gated turns (§6).
const Schema = `{
  "type": "object",
  "properties": {
    "goal": {"type": "string", "description": "One sentence describing the outcome of this request."},
    "steps": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 2,
      "maxItems": 5,
      "description": "Ordered list of 2-5 steps required to satisfy the goal."
    }
  },
  "required": ["goal", "steps"]
}`

// Description is the human-readable description advertised for SetGoals.
const Description = "Declare everything that needs to happen before this request is done, as a one-sentence goal and an ordered list of 2-5 steps."

// Args is the decoded payload of a SetGoals call.
type Args struct {
	Goal  string   `json:"goal"`
	Steps []string `json:"steps"`
}

// IsSetGoals reports whether name matches the SetGoals tool, case-insensitive
// per §4.6.
func IsSetGoals(name string) bool {
	return strings.EqualFold(name, ToolName)
}

// Passes implements passesGate(toolCalls) from §4.6: true when toolCalls is
// non-empty and at least one call is SetGoals.
func Passes(calls []model.ToolCall) bool {
	if len(calls) == 0 {
		return false
	}
	for _, c := range calls {
		if IsSetGoals(c.Name) {
			return true
		}
	}
	return false
}

// Skip reports whether the gate should be skipped entirely per §4.6: pulse
// invocations always skip, and nested callback depths greater than 1 skip
// because the outer level already enforced it.
func Skip(invocationType string, callbackDepth int) bool {
	return invocationType == "pulse" || callbackDepth > 1
}

// ParseArgs decodes a SetGoals call's raw JSON arguments.
func ParseArgs(raw string) (Args, error) {
	var a Args
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return Args{}, fmt.Errorf("parse SetGoals arguments: %w", err)
	}
	if a.Goal == "" {
		return Args{}, fmt.Errorf("parse SetGoals arguments: missing goal")
	}
	if len(a.Steps) < 2 || len(a.Steps) > 5 {
		return Args{}, fmt.Errorf("parse SetGoals arguments: steps must contain 2-5 entries, got %d", len(a.Steps))
	}
	return a, nil
}

// ToModelPlan converts parsed SetGoals arguments into the model.Plan value.
func (a Args) ToModelPlan() *model.Plan {
	return &model.Plan{Goal: a.Goal, Steps: append([]string(nil), a.Steps...)}
}

// AdmonishmentText renders the "[system message: <rid>] ..." injection used
// when a tool-calling turn is discarded for lacking SetGoals (§4.2 step 3).
func AdmonishmentText(requestID string) string {
	return fmt.Sprintf(
		"[system message: %s] Your tool calls were discarded because they did not include SetGoals. "+
			"Before calling any other tool, call SetGoals with a one-sentence goal and 2-5 ordered steps "+
			"describing everything that needs to happen before this request is done, then include your "+
			"other tool calls in the same turn.",
		requestID,
	)
}

// TodoText renders the executor-loop instruction for an active plan (§4.2
// step 6): a todo list derived from the plan plus the skip/no-retry/
// SYNTHESIZE contract.
func TodoText(p *model.Plan) string {
	if !p.Active() {
		return "If you need more information, call tools. Otherwise respond with: SYNTHESIZE"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "TODO — Goal: %s\n", p.Goal)
	for i, step := range p.Steps {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
	}
	b.WriteString("\nLook at the tool results already in the conversation. If an item is satisfied by existing " +
		"results, skip it. Call tools only for items with no results yet. Batch as many as possible. Do NOT " +
		"retry a tool that already failed. Respond with SYNTHESIZE when all items are addressed.")
	return b.String()
}

// ReplanText renders the synthesis-time replan affordance (§4.2 step 7).
func ReplanText(p *model.Plan) string {
	return fmt.Sprintf(
		"Review the tool results above against your todo list (Goal: %s). If results are sufficient, "+
			"respond to the user. If you need a different strategy, call SetGoals with a new todo list "+
			"(and optionally other tools).",
		p.Goal,
	)
}
