package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entityruntime/agentcore/contextmgr"
	"github.com/entityruntime/agentcore/dispatch"
	"github.com/entityruntime/agentcore/hooks"
	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/modelplugin"
	"github.com/entityruntime/agentcore/plan"
	"github.com/entityruntime/agentcore/stream"
	"github.com/entityruntime/agentcore/telemetry"
)

type (
	// Executor runs the dual-model tool-calling loop for a single request.
	// One Executor instance is constructed per request by the
	// RequestCoordinator; it is not reused across requests.
	Executor struct {
		primary  modelplugin.Plugin
		toolLoop modelplugin.Plugin // nil selects the fallback path

		tools       map[string]*dispatch.Handle
		toolSchemas []modelplugin.ToolSchema

		dispatcher *dispatch.Dispatcher
		store      *contextmgr.Store
		publisher  stream.Publisher
		bus        hooks.Bus
		logger     telemetry.Logger

		errorBuilder ErrorResponseBuilder
		windowTurns  int
	}

	// Option configures an Executor at construction time.
	Option func(*Executor)
)

// WithToolLoopModel installs the cheap executor-loop model, selecting the
// dual-model path (§4.2). Without it, Run uses the single-model fallback
// path.
func WithToolLoopModel(p modelplugin.Plugin) Option {
	return func(e *Executor) { e.toolLoop = p }
}

// WithPublisher overrides the default progress Publisher.
func WithPublisher(p stream.Publisher) Option {
	return func(e *Executor) { e.publisher = p }
}

// WithBus overrides the default hooks.Bus.
func WithBus(b hooks.Bus) Option {
	return func(e *Executor) { e.bus = b }
}

// WithLogger overrides the default telemetry.Logger.
func WithLogger(l telemetry.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithErrorResponseBuilder overrides DefaultErrorResponseBuilder.
func WithErrorResponseBuilder(b ErrorResponseBuilder) Option {
	return func(e *Executor) { e.errorBuilder = b }
}

// WithWindowTurns overrides contextmgr.DefaultWindowTurns.
func WithWindowTurns(n int) Option {
	return func(e *Executor) { e.windowTurns = n }
}

// New constructs an Executor bound to primary and the entity's resolved
// tool set.
func New(primary modelplugin.Plugin, tools map[string]*dispatch.Handle, toolSchemas []modelplugin.ToolSchema, opts ...Option) *Executor {
	e := &Executor{
		primary:      primary,
		tools:        tools,
		toolSchemas:  toolSchemas,
		bus:          hooks.NewBus(),
		publisher:    stream.NewInProcessPublisher(),
		logger:       telemetry.NoopLogger{},
		errorBuilder: DefaultErrorResponseBuilder,
		store:        contextmgr.NewStore(),
		windowTurns:  contextmgr.DefaultWindowTurns,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.dispatcher = dispatch.New(e.bus)
	return e
}

func setGoalsSchema() modelplugin.ToolSchema {
	var s modelplugin.ToolSchema
	s.Type = "function"
	s.Function.Name = plan.ToolName
	s.Function.Description = plan.Description
	s.Function.Parameters = json.RawMessage(plan.Schema)
	return s
}

func (e *Executor) toolsWithGate() []modelplugin.ToolSchema {
	return append(append([]modelplugin.ToolSchema{}, e.toolSchemas...), setGoalsSchema())
}

// Run implements the full §4.2 algorithm and returns the final assistant
// message. It never returns a nil message: failures are rendered through
// the configured ErrorResponseBuilder, and the terminal progress event is
// always published before Run returns.
func (e *Executor) Run(ctx context.Context, req *model.Request) (msg *model.Message, err error) {
	history := contextmgr.SliceByTurns(req.History, e.windowTurns)
	history = append(history, model.NewUserText(req.UserMessage))

	defer func() {
		if msg == nil {
			msg = e.errorBuilder(req.ID, err)
		}
		data, _ := json.Marshal(stream.PathwayResultData{
			Citations: req.Result.Citations,
			ToolsUsed: req.Result.ToolsUsed,
		})
		_ = e.publisher.PublishTerminal(ctx, stream.ProgressEvent{
			RequestID: req.ID,
			Progress:  1,
			Data:      msg.Text(),
			Info:      string(data),
		})
	}()

	if e.toolLoop != nil {
		msg, err = e.runDualModel(ctx, req, history)
	} else {
		msg, err = e.runFallback(ctx, req, history)
	}
	if err != nil {
		return nil, err
	}
	if msg == nil || strings.TrimSpace(msg.Text()) == "" {
		return model.NewSystemText(EmptyFinalTextFallback), nil
	}
	return msg, nil
}

// runDualModel implements steps 1-10 of §4.2's dual-model algorithm.
func (e *Executor) runDualModel(ctx context.Context, req *model.Request, history []*model.Message) (*model.Message, error) {
	plugin := e.primary

	// Step 1: initial model call.
	result, handle, err := e.callModel(ctx, plugin, history, e.toolsWithGate(), modelplugin.EffortMedium, req.Stream)
	if err != nil {
		return nil, fmt.Errorf("executor: initial call: %w", err)
	}
	result, err = e.drainIfStreaming(ctx, req.ID, result, handle)
	if err != nil {
		return nil, fmt.Errorf("executor: drain initial stream: %w", err)
	}

	// Step 2: no tool calls -> final answer.
	if len(result.ToolCalls) == 0 {
		return textMessage(result.OutputText), nil
	}

	assistantTurn := &model.Message{Role: model.RoleAssistant, ToolCalls: result.ToolCalls, Parts: []model.Part{model.TextPart{Text: result.OutputText}}}
	history = append(history, assistantTurn)

	var activePlan model.Plan

	// Step 3: planning gate.
	skip := plan.Skip(string(req.InvocationType), req.CallbackDepth)
	if !skip {
		calls, err := e.enforceGate(ctx, req, plugin, &history)
		if err != nil {
			return nil, err
		}
		result.ToolCalls = calls
	}

	replanCount := 0

runLoop:
	// Step 4: execute the tool round.
	out, err := e.dispatcher.DispatchRound(ctx, req.ID, result.ToolCalls, e.tools, &activePlan)
	if err != nil {
		return nil, fmt.Errorf("executor: dispatch round: %w", err)
	}
	history = append(history, out.Messages...)
	e.store.CaptureRound(out.Messages, out.Stats.Round)
	e.store.CompressOlderToolResults(history, out.Stats.Round, e.summarizerFor)

	if out.BudgetExhausted {
		return e.synthesize(ctx, req, history, &activePlan)
	}

	// Step 5: strip SetGoals from executor-visible history.
	visible := stripSetGoals(history)

	// Step 6: executor loop.
	for {
		todo := model.NewUserText(plan.TodoText(&activePlan))
		loopHistory := append(append([]*model.Message{}, visible...), todo)

		lr, _, err := e.callModel(ctx, e.toolLoop, loopHistory, e.toolSchemasNoGate(), modelplugin.EffortLow, false)
		if err != nil {
			return nil, fmt.Errorf("executor: executor-loop call: %w", err)
		}
		if len(lr.ToolCalls) == 0 {
			break
		}
		loopAssistant := &model.Message{Role: model.RoleAssistant, ToolCalls: lr.ToolCalls}
		visible = append(visible, loopAssistant)
		history = append(history, loopAssistant)

		rOut, err := e.dispatcher.DispatchRound(ctx, req.ID, lr.ToolCalls, e.tools, &activePlan)
		if err != nil {
			return nil, fmt.Errorf("executor: dispatch round: %w", err)
		}
		visible = append(visible, rOut.Messages...)
		history = append(history, rOut.Messages...)
		e.store.CaptureRound(rOut.Messages, rOut.Stats.Round)
		e.store.CompressOlderToolResults(history, rOut.Stats.Round, e.summarizerFor)
		if rOut.BudgetExhausted {
			break
		}
	}

	// Step 7: prepare for synthesis.
	history = contextmgr.RebuildTurnParity(history)
	history = stripSetGoals(history)
	synthHistory := append([]*model.Message{}, history...)
	if activePlan.Active() {
		synthHistory = append(synthHistory, model.NewUserText(plan.ReplanText(&activePlan)))
	}

	// Step 8: synthesis call.
	sResult, sHandle, err := e.callModel(ctx, plugin, synthHistory, e.toolsWithGate(), effortOrDefault(modelplugin.EffortMedium), req.Stream)
	if err != nil {
		return nil, fmt.Errorf("executor: synthesis call: %w", err)
	}
	sResult, err = e.drainIfStreaming(ctx, req.ID, sResult, sHandle)
	if err != nil {
		return nil, fmt.Errorf("executor: drain synthesis stream: %w", err)
	}

	// Step 9: inspect synthesis tool calls.
	if len(sResult.ToolCalls) > 0 {
		if plan.Passes(sResult.ToolCalls) && replanCount < MaxReplanSafetyCap {
			replanCount++
			if args, err := firstSetGoalsArgs(sResult.ToolCalls); err == nil {
				activePlan = *args.ToModelPlan()
				_ = e.bus.Publish(ctx, hooks.PlanReplanEvent{
					Base:        hooks.Base{ReqID: req.ID},
					Goal:        activePlan.Goal,
					Steps:       activePlan.Steps,
					ReplanCount: replanCount,
				})
			}
			history = append(history, &model.Message{Role: model.RoleAssistant, ToolCalls: sResult.ToolCalls})
			result.ToolCalls = sResult.ToolCalls
			goto runLoop
		}
		// Continuation: execute once, then re-synthesize.
		history = append(history, &model.Message{Role: model.RoleAssistant, ToolCalls: sResult.ToolCalls})
		cOut, err := e.dispatcher.DispatchRound(ctx, req.ID, sResult.ToolCalls, e.tools, &activePlan)
		if err != nil {
			return nil, fmt.Errorf("executor: continuation dispatch: %w", err)
		}
		history = append(history, cOut.Messages...)
		e.store.CaptureRound(cOut.Messages, cOut.Stats.Round)
		return e.synthesize(ctx, req, history, &activePlan)
	}

	// Step 10: final answer.
	return textMessage(sResult.OutputText), nil
}

// synthesize performs one more synthesis pass, used to re-enter step 8 from
// a budget-exhaustion break or a continuation round.
func (e *Executor) synthesize(ctx context.Context, req *model.Request, history []*model.Message, p *model.Plan) (*model.Message, error) {
	e.store.Rehydrate(history)
	history = contextmgr.RebuildTurnParity(history)
	synthHistory := stripSetGoals(history)
	if p.Active() {
		synthHistory = append(synthHistory, model.NewUserText(plan.ReplanText(p)))
	}
	result, handle, err := e.callModel(ctx, e.primary, synthHistory, e.toolsWithGate(), modelplugin.EffortMedium, req.Stream)
	if err != nil {
		return nil, fmt.Errorf("executor: final synthesis: %w", err)
	}
	result, err = e.drainIfStreaming(ctx, req.ID, result, handle)
	if err != nil {
		return nil, fmt.Errorf("executor: drain final synthesis stream: %w", err)
	}
	return textMessage(result.OutputText), nil
}

// runFallback implements the single-pass fallback algorithm used when no
// executor-loop model is configured.
func (e *Executor) runFallback(ctx context.Context, req *model.Request, history []*model.Message) (*model.Message, error) {
	result, handle, err := e.callModel(ctx, e.primary, history, e.toolsWithGate(), modelplugin.EffortMedium, req.Stream)
	if err != nil {
		return nil, fmt.Errorf("executor: initial call: %w", err)
	}
	result, err = e.drainIfStreaming(ctx, req.ID, result, handle)
	if err != nil {
		return nil, fmt.Errorf("executor: drain initial stream: %w", err)
	}
	if len(result.ToolCalls) == 0 {
		return textMessage(result.OutputText), nil
	}

	history = append(history, &model.Message{Role: model.RoleAssistant, ToolCalls: result.ToolCalls})
	var activePlan model.Plan
	out, err := e.dispatcher.DispatchRound(ctx, req.ID, result.ToolCalls, e.tools, &activePlan)
	if err != nil {
		return nil, fmt.Errorf("executor: dispatch round: %w", err)
	}
	history = append(history, out.Messages...)
	e.store.CaptureRound(out.Messages, out.Stats.Round)
	e.store.Rehydrate(history)
	history = contextmgr.RebuildTurnParity(history)

	final, handle, err := e.callModel(ctx, e.primary, history, e.toolsWithGate(), modelplugin.EffortMedium, req.Stream)
	if err != nil {
		return nil, fmt.Errorf("executor: re-call: %w", err)
	}
	final, err = e.drainIfStreaming(ctx, req.ID, final, handle)
	if err != nil {
		return nil, fmt.Errorf("executor: drain re-call stream: %w", err)
	}
	return textMessage(final.OutputText), nil
}

// enforceGate implements step 3: re-prompting up to plan.MaxGateRetries
// times for a SetGoals-including turn before giving up with an empty tool
// set.
func (e *Executor) enforceGate(ctx context.Context, req *model.Request, plugin modelplugin.Plugin, history *[]*model.Message) ([]model.ToolCall, error) {
	h := *history
	last := h[len(h)-1]
	calls := last.ToolCalls
	for attempt := 0; !plan.Passes(calls) && attempt < plan.MaxGateRetries; attempt++ {
		h = append(h, model.NewUserText(plan.AdmonishmentText(req.ID)))
		result, _, err := e.callModel(ctx, plugin, h, e.toolsWithGate(), modelplugin.EffortMedium, false)
		if err != nil {
			return nil, fmt.Errorf("executor: gate retry: %w", err)
		}
		h = append(h, &model.Message{Role: model.RoleAssistant, ToolCalls: result.ToolCalls, Parts: []model.Part{model.TextPart{Text: result.OutputText}}})
		calls = result.ToolCalls
	}
	*history = h
	if !plan.Passes(calls) {
		_ = e.bus.Publish(ctx, hooks.PlanSkippedEvent{Base: hooks.Base{ReqID: req.ID}, Reason: "gate retries exhausted"})
		return nil, nil
	}
	return calls, nil
}

func (e *Executor) callModel(ctx context.Context, plugin modelplugin.Plugin, history []*model.Message, toolSchemas []modelplugin.ToolSchema, effort modelplugin.ReasoningEffort, doStream bool) (*modelplugin.Result, stream.Handle, error) {
	args := modelplugin.CallArgs{
		Messages:        history,
		Tools:           toolSchemas,
		ToolChoice:      modelplugin.ToolChoiceAuto,
		Stream:          doStream,
		ReasoningEffort: effort,
	}
	return plugin.Call(ctx, args)
}

func (e *Executor) drainIfStreaming(ctx context.Context, requestID string, result *modelplugin.Result, handle stream.Handle) (*modelplugin.Result, error) {
	if handle == nil {
		return result, nil
	}
	pipeline := &stream.Pipeline{Publisher: e.publisher, RequestID: requestID}
	res, err := pipeline.Drain(ctx, handle)
	if err != nil {
		return nil, err
	}
	return &modelplugin.Result{OutputText: res.Text, ToolCalls: res.ToolCalls}, nil
}

func (e *Executor) summarizerFor(toolName string) contextmgr.Summarizer {
	h, ok := e.tools[strings.ToLower(toolName)]
	if !ok || h.Definition.Summarize == nil {
		return nil
	}
	return func(_ string, content string) string { return h.Definition.Summarize(content) }
}

func (e *Executor) toolSchemasNoGate() []modelplugin.ToolSchema {
	return e.toolSchemas
}

func textMessage(text string) *model.Message {
	return &model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}}
}

func effortOrDefault(e modelplugin.ReasoningEffort) modelplugin.ReasoningEffort {
	if e == "" {
		return modelplugin.EffortMedium
	}
	return e
}

func firstSetGoalsArgs(calls []model.ToolCall) (plan.Args, error) {
	for _, c := range calls {
		if plan.IsSetGoals(c.Name) {
			return plan.ParseArgs(c.Arguments)
		}
	}
	return plan.Args{}, fmt.Errorf("executor: no SetGoals call present")
}

// stripSetGoals removes every SetGoals assistant tool_call (and its paired
// tool-response) from messages, returning a new slice (§4.2 step 5/7).
func stripSetGoals(messages []*model.Message) []*model.Message {
	strippedCallIDs := make(map[string]bool)
	out := make([]*model.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleAssistant && len(m.ToolCalls) > 0 {
			var kept []model.ToolCall
			for _, tc := range m.ToolCalls {
				if plan.IsSetGoals(tc.Name) {
					strippedCallIDs[tc.ID] = true
					continue
				}
				kept = append(kept, tc)
			}
			if len(kept) == 0 && len(m.Parts) == 0 {
				continue
			}
			clone := m.Clone()
			clone.ToolCalls = kept
			out = append(out, clone)
			continue
		}
		if m.Role == model.RoleTool && strippedCallIDs[m.ToolCallID] {
			continue
		}
		out = append(out, m)
	}
	return out
}
