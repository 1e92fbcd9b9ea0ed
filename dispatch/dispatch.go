// Package dispatch implements the ToolDispatcher (§4.3): parallel execution
// of a model's tool-call intents, duplicate suppression, argument
// sanitation, budget accounting, and result merging.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/entityruntime/agentcore/hooks"
	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/plan"
	"github.com/entityruntime/agentcore/tools"
)

// ToolBudget is the §3/§6 bit-exact per-request ceiling. The dual-model
// loop exits once budget reaches this.
const ToolBudget = 500

// MaxToolResultLength is the §6 bit-exact per-result truncation threshold.
const MaxToolResultLength = 150000

// reservedArgumentKeys are infrastructure-level keys a model must never
// control; they are stripped from tool arguments before forwarding (§4.3
// step 2, §9 "Dynamic argument sanitation").
var reservedArgumentKeys = map[string]struct{}{
	"entityId":                 {},
	"contextId":                {},
	"entityTools":              {},
	"entityToolsOpenAiFormat":  {},
	"entityInstructions":       {},
	"agentContext":             {},
	"invocationType":           {},
	"primaryModel":             {},
	"configuredReasoningEffort": {},
}

// Handle is the minimal invocable surface the dispatcher needs from a
// resolved tool: its definition (for cost/timeout/icon/schema) and an
// invoke function.
type Handle struct {
	Definition tools.Definition
	Invoke     func(ctx context.Context, args map[string]any) (any, error)
}

// CacheBackend is the ToolCallCache storage contract (§3): a mapping from
// `<toolName>:<argumentsJSON>` to the most recent result content. The
// default backend (Cache) is an in-process map scoped to one request; a
// distributed backend (store/toolcache/redis) can be substituted via
// NewWithCache so duplicate detection holds across processes.
type CacheBackend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// Cache is the default in-process CacheBackend, scoped to one request's
// lifetime.
type Cache struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewCache constructs an empty per-request Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Get implements CacheBackend.
func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

// Put implements CacheBackend.
func (c *Cache) Put(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func cacheKey(toolName, argsJSON string) string {
	return strings.ToLower(toolName) + ":" + argsJSON
}

// Stats mirrors §3 RoundStats: per-round bookkeeping surfaced to the
// executor and the NDJSON logger.
type Stats struct {
	Round           int
	ToolCount       int
	FailedCount     int
	BudgetUsed      int
	BudgetTotal     int
	BudgetExhausted bool
}

// Outcome is dispatchRound's result (§4.3 contract): the merged messages to
// append to history, updated budget state, and round statistics.
type Outcome struct {
	Messages        []*model.Message
	BudgetUsed      int
	BudgetExhausted bool
	Stats           Stats
}

// Dispatcher executes one tool round at a time for a single request; it
// owns that request's duplicate-call cache and running budget.
type Dispatcher struct {
	Bus   hooks.Bus
	Cache CacheBackend

	budget int
	round  int
}

// New constructs a Dispatcher bound to bus and the default in-process
// Cache, publishing ToolStartEvent, ToolFinishEvent, and ToolRoundEvent for
// every dispatched round.
func New(bus hooks.Bus) *Dispatcher {
	return &Dispatcher{Bus: bus, Cache: NewCache()}
}

// NewWithCache constructs a Dispatcher bound to an explicit CacheBackend,
// e.g. a distributed backend shared across processes.
func NewWithCache(bus hooks.Bus, backend CacheBackend) *Dispatcher {
	return &Dispatcher{Bus: bus, Cache: backend}
}

// DispatchRound implements dispatchRound(toolCalls, preHistory, request)
// from §4.3. preHistory is the history each parallel call's merged
// assistant/tool-response pair is conceptually appended to; it is not
// mutated or returned — callers append Outcome.Messages to their own
// history.
func (d *Dispatcher) DispatchRound(ctx context.Context, requestID string, calls []model.ToolCall, resolved map[string]*Handle, p *model.Plan) (Outcome, error) {
	d.round++
	stats := Stats{Round: d.round}

	for _, c := range calls {
		if strings.TrimSpace(c.Name) == "" {
			// Tool call with missing function/name: the round is invalid;
			// force the budget exhausted so the loop breaks safely (§4.3
			// edge case).
			d.budget = ToolBudget
			stats.BudgetUsed = d.budget
			stats.BudgetTotal = ToolBudget
			stats.BudgetExhausted = true
			return Outcome{BudgetUsed: d.budget, BudgetExhausted: true, Stats: stats}, nil
		}
	}

	var planCalls, realCalls []model.ToolCall
	for _, c := range calls {
		if plan.IsSetGoals(c.Name) {
			planCalls = append(planCalls, c)
		} else {
			realCalls = append(realCalls, c)
		}
	}

	var messages []*model.Message

	for _, pc := range planCalls {
		content := "Plan recorded."
		if args, err := plan.ParseArgs(pc.Arguments); err == nil {
			*p = *args.ToModelPlan()
			_ = d.Bus.Publish(ctx, hooks.PlanCreatedEvent{
				Base:  hooks.Base{ReqID: requestID, TS: time.Now()},
				Goal:  p.Goal,
				Steps: p.Steps,
			})
		}
		// A malformed SetGoals call still returns a success tool-response;
		// the plan is simply left unset (§4.3).
		messages = append(messages,
			&model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{pc}},
			model.NewToolResult(pc.ID, pc.Name, content),
		)
	}

	if len(realCalls) == 0 && len(planCalls) == 0 {
		// Missing function/name on every call: force budget exhaustion so
		// the loop breaks safely rather than spinning (§4.3 edge case).
		d.budget = ToolBudget
		stats.BudgetUsed = d.budget
		stats.BudgetTotal = ToolBudget
		stats.BudgetExhausted = true
		return Outcome{Messages: messages, BudgetUsed: d.budget, BudgetExhausted: true, Stats: stats}, nil
	}

	type result struct {
		assistant *model.Message
		response  *model.Message
		failed    bool
	}
	results := make([]result, len(realCalls))
	var wg sync.WaitGroup
	for i, call := range realCalls {
		wg.Add(1)
		go func(i int, call model.ToolCall) {
			defer wg.Done()
			results[i] = d.runOne(ctx, requestID, call, resolved)
		}(i, call)
	}
	wg.Wait()

	for _, r := range results {
		messages = append(messages, r.assistant, r.response)
		stats.ToolCount++
		if r.failed {
			stats.FailedCount++
		}
	}

	for _, call := range realCalls {
		h := resolved[strings.ToLower(call.Name)]
		cost := tools.DefaultToolCost
		if h != nil {
			cost = h.Definition.EffectiveCost()
		}
		if cost < 1 {
			cost = 1
		}
		d.budget += cost
	}

	stats.BudgetUsed = d.budget
	stats.BudgetTotal = ToolBudget
	stats.BudgetExhaust()

	_ = d.Bus.Publish(ctx, hooks.ToolRoundEvent{
		Base:          hooks.Base{ReqID: requestID, TS: time.Now()},
		Round:         d.round,
		ToolCount:     stats.ToolCount,
		FailedCount:   stats.FailedCount,
		BudgetUsed:    stats.BudgetUsed,
		BudgetTotal:   stats.BudgetTotal,
		BudgetExhaust: stats.BudgetExhausted,
	})

	return Outcome{Messages: messages, BudgetUsed: d.budget, BudgetExhausted: stats.BudgetExhausted, Stats: stats}, nil
}

// BudgetExhaust recomputes BudgetExhausted from BudgetUsed; it exists so
// both the normal and force-exhaustion paths share one rule.
func (s *Stats) BudgetExhaust() {
	if s.BudgetUsed >= ToolBudget {
		s.BudgetExhausted = true
	}
}

func (d *Dispatcher) runOne(ctx context.Context, requestID string, call model.ToolCall, resolved map[string]*Handle) (res struct {
	assistant *model.Message
	response  *model.Message
	failed    bool
}) {
	res.assistant = &model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{call}}

	args, rawKeys, err := decodeArguments(call.Arguments)
	if err != nil {
		res.failed = true
		res.response = model.NewToolResult(call.ID, call.Name, "Invalid tool call structure: missing function arguments")
		return res
	}
	sanitized := sanitizeArgs(args)
	argsJSON, _ := json.Marshal(sanitized)
	key := cacheKey(call.Name, string(argsJSON))

	if cached, ok, _ := d.Cache.Get(ctx, key); ok {
		res.response = model.NewToolResult(call.ID, call.Name,
			fmt.Sprintf("This tool was already called with these exact arguments. Previous result: %s", cached))
		return res
	}

	h := resolved[strings.ToLower(call.Name)]
	if h == nil {
		res.failed = true
		res.response = model.NewToolResult(call.ID, call.Name, fmt.Sprintf("tool %q is not available", call.Name))
		return res
	}

	userMessage, _ := rawKeys["userMessage"].(string)
	if !h.Definition.HideExecution {
		_ = d.Bus.Publish(ctx, hooks.ToolStartEvent{
			Base:       hooks.Base{ReqID: requestID, TS: time.Now()},
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Icon:       h.Definition.Icon,
			Message:    startMessage(h.Definition, userMessage),
		})
	}

	start := time.Now()
	content, callErr := invokeWithTimeout(ctx, h, sanitized)
	duration := time.Since(start)

	success := callErr == nil
	var errText string
	if callErr != nil {
		errText = callErr.Error()
	} else if errField, ok := extractErrorField(content); ok {
		success = false
		errText = errField
	}

	if !h.Definition.HideExecution {
		_ = d.Bus.Publish(ctx, hooks.ToolFinishEvent{
			Base:       hooks.Base{ReqID: requestID, TS: time.Now()},
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Success:    success,
			ErrorText:  errText,
			Duration:   duration,
		})
	}

	text := stringifyResult(content, errText, success)
	if len(text) > MaxToolResultLength {
		text = text[:MaxToolResultLength] + "[Content truncated due to length]"
	}
	_ = d.Cache.Put(ctx, key, text)

	res.failed = !success
	res.response = model.NewToolResult(call.ID, call.Name, text)
	return res
}

func invokeWithTimeout(ctx context.Context, h *Handle, args map[string]any) (any, error) {
	timeout := time.Duration(h.Definition.EffectiveTimeoutMS()) * time.Millisecond
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := h.Invoke(cctx, args)
		done <- outcome{val: v, err: err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-cctx.Done():
		return nil, fmt.Errorf("%s timed out after %ds", h.Definition.Name, int(timeout.Seconds()))
	}
}

func decodeArguments(raw string) (map[string]any, map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, nil, err
	}
	return args, args, nil
}

func sanitizeArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if _, reserved := reservedArgumentKeys[k]; reserved {
			continue
		}
		out[k] = v
	}
	return out
}

func startMessage(def tools.Definition, userMessage string) string {
	if userMessage != "" {
		return userMessage
	}
	if def.VoiceFallback != "" {
		return def.VoiceFallback
	}
	return fmt.Sprintf("Using %s…", def.Name)
}

// extractErrorField looks for an explicit "error" field on a returned
// structure, or a JSON-in-string payload carrying one (§4.3 step 5).
func extractErrorField(v any) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		if e, ok := t["error"]; ok {
			if s, ok := e.(string); ok && s != "" {
				return s, true
			}
			if b, err := json.Marshal(e); err == nil {
				return string(b), true
			}
		}
	case string:
		var probe struct {
			Error string `json:"error"`
		}
		if json.Unmarshal([]byte(t), &probe) == nil && probe.Error != "" {
			return probe.Error, true
		}
	}
	return "", false
}

func stringifyResult(v any, errText string, success bool) string {
	if !success && errText != "" {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
		return errText
	}
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
