// Package coordinator implements the RequestCoordinator (§4.1): it owns a
// single user request's lifecycle end to end — constructing the bound
// AgentExecutor, persisting run/session state, recording memory, and
// exposing submit/cancel/publishProgress to callers — grounded on the
// teacher's runtime.Runtime (registration/lifecycle) and
// runtime/agent/run + runtime/agent/session, generalized to a single
// always-in-process coordinator (no Temporal engine; see DESIGN.md).
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entityruntime/agentcore/dispatch"
	"github.com/entityruntime/agentcore/executor"
	"github.com/entityruntime/agentcore/hooks"
	"github.com/entityruntime/agentcore/memory"
	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/modelplugin"
	runstore "github.com/entityruntime/agentcore/store/run"
	runinmem "github.com/entityruntime/agentcore/store/run/inmem"
	sessionstore "github.com/entityruntime/agentcore/store/session"
	sessioninmem "github.com/entityruntime/agentcore/store/session/inmem"
	"github.com/entityruntime/agentcore/stream"
	"github.com/entityruntime/agentcore/telemetry"
	"github.com/entityruntime/agentcore/toolregistry"
)

// Coordinator implements the §4.1 RequestCoordinator. One Coordinator
// instance serves every request for a process; it constructs a fresh
// executor.Executor per request but shares the tool registry, stores, and
// pub/sub infrastructure across requests.
type Coordinator struct {
	registry *toolregistry.Registry
	primary  modelplugin.Plugin
	toolLoop modelplugin.Plugin

	runs     runstore.Store
	sessions sessionstore.Store
	memory   memory.Recorder
	publisher stream.Publisher
	bus       hooks.Bus
	logger    telemetry.Logger
	windowTurns int

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithToolLoopModel installs the cheap executor-loop model; every request's
// Executor is built with it, selecting the dual-model path.
func WithToolLoopModel(p modelplugin.Plugin) Option {
	return func(c *Coordinator) { c.toolLoop = p }
}

// WithRunStore overrides the default in-memory run.Store.
func WithRunStore(s runstore.Store) Option {
	return func(c *Coordinator) { c.runs = s }
}

// WithSessionStore overrides the default in-memory session.Store.
func WithSessionStore(s sessionstore.Store) Option {
	return func(c *Coordinator) { c.sessions = s }
}

// WithMemory overrides the default memory.NoopRecorder.
func WithMemory(r memory.Recorder) Option {
	return func(c *Coordinator) { c.memory = r }
}

// WithPublisher overrides the default in-process stream.Publisher.
func WithPublisher(p stream.Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithBus overrides the default in-process hooks.Bus.
func WithBus(b hooks.Bus) Option {
	return func(c *Coordinator) { c.bus = b }
}

// WithLogger overrides the default telemetry.NoopLogger.
func WithLogger(l telemetry.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithWindowTurns overrides the default per-executor window size (§4.4).
func WithWindowTurns(n int) Option {
	return func(c *Coordinator) { c.windowTurns = n }
}

// New constructs a Coordinator bound to a tool registry and the primary
// model plugin every request's executor uses for its initial and synthesis
// calls.
func New(registry *toolregistry.Registry, primary modelplugin.Plugin, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:  registry,
		primary:   primary,
		runs:      runinmem.New(),
		sessions:  sessioninmem.New(),
		memory:    memory.NoopRecorder{},
		publisher: stream.NewInProcessPublisher(),
		bus:       hooks.NewBus(),
		logger:    telemetry.NoopLogger{},
		cancels:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe exposes the coordinator's progress Publisher so callers can
// observe a request's events; see stream.Publisher.Subscribe.
func (c *Coordinator) Subscribe(requestID string) (<-chan stream.ProgressEvent, func()) {
	return c.publisher.Subscribe(requestID)
}

// Submit implements the §4.1 submit(request) contract: it accepts a
// request, creates internal state (run record, cancellation token), and
// either runs the work asynchronously (req.Stream) while streaming
// progress to subscribers, returning the request id immediately, or runs
// synchronously and returns the final message alongside the id.
//
// cfg resolves which tools this request's entity exposes (§6
// getToolsForEntity); the coordinator does not itself own entity
// configuration storage (§1 Non-goals).
func (c *Coordinator) Submit(ctx context.Context, req *model.Request, cfg toolregistry.EntityConfig) (requestID string, result *model.Message, err error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	requestID = req.ID

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancels[req.ID] = cancel
	c.mu.Unlock()

	now := time.Now()
	_ = c.runs.Upsert(ctx, runstore.Record{
		RequestID: req.ID,
		RootID:    req.RootID,
		EntityID:  req.EntityID,
		Status:    runstore.StatusRunning,
		StartedAt: now,
		UpdatedAt: now,
	})

	if req.History == nil {
		if history, herr := c.sessions.History(ctx, req.EntityID); herr == nil {
			req.History = history
		}
	}

	exec := c.buildExecutor(req, cfg)

	if req.Stream {
		go c.run(runCtx, cancel, exec, req)
		return requestID, nil, nil
	}

	msg := c.run(runCtx, cancel, exec, req)
	return requestID, msg, nil
}

// Cancel implements the §4.1 cancel(requestId) contract: in-flight tool
// calls complete, but no further model calls or tool rounds are initiated
// for the request. Cancellation is cooperative: it cancels the request's
// context, which every suspension point (model call, tool invocation)
// observes on its next check.
func (c *Coordinator) Cancel(requestID string) error {
	c.mu.Lock()
	cancel, ok := c.cancels[requestID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("coordinator: no such request %q", requestID)
	}
	cancel()
	return nil
}

// PublishProgress implements the §4.1 publishProgress contract directly,
// for callers (e.g. nested sub-pathway requests) that need to deliver a
// progress event outside of an executor.Run call.
func (c *Coordinator) PublishProgress(ctx context.Context, evt stream.ProgressEvent) error {
	if evt.Progress >= 1 {
		return c.publisher.PublishTerminal(ctx, evt)
	}
	return c.publisher.Publish(ctx, evt)
}

func (c *Coordinator) buildExecutor(req *model.Request, cfg toolregistry.EntityConfig) *executor.Executor {
	invocation := toolregistry.InvocationChat
	if req.InvocationType == model.InvocationPulse {
		invocation = toolregistry.InvocationPulse
	}
	resolved := c.registry.GetToolsForEntity(cfg, invocation)

	opts := []executor.Option{
		executor.WithPublisher(c.publisher),
		executor.WithBus(c.bus),
		executor.WithLogger(c.logger),
	}
	if c.toolLoop != nil {
		opts = append(opts, executor.WithToolLoopModel(c.toolLoop))
	}
	if c.windowTurns > 0 {
		opts = append(opts, executor.WithWindowTurns(c.windowTurns))
	}

	return executor.New(c.primary, dispatch.FromToolRegistry(resolved.ByName), toOpenAISchemas(resolved.OpenAIFormat), opts...)
}

// run drives one request to completion: executes it, records the
// run/session/memory side effects, and releases the cancellation token.
// It always returns a non-nil message (executor.Run's own contract).
func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, exec *executor.Executor, req *model.Request) *model.Message {
	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.cancels, req.ID)
		c.mu.Unlock()
	}()

	msg, err := exec.Run(ctx, req)

	status := runstore.StatusCompleted
	errText := ""
	if err != nil {
		status = runstore.StatusFailed
		errText = err.Error()
	} else if ctx.Err() != nil {
		status = runstore.StatusCanceled
	}
	_ = c.runs.Upsert(context.Background(), runstore.Record{
		RequestID: req.ID,
		RootID:    req.RootID,
		EntityID:  req.EntityID,
		Status:    status,
		UpdatedAt: time.Now(),
		Error:     errText,
	})

	_ = c.sessions.Append(context.Background(), req.EntityID, model.NewUserText(req.UserMessage), msg)

	events := memory.TurnEvents(req.UserMessage, msg, time.Now())
	_ = c.memory.Record(context.Background(), req.EntityID, events...)

	return msg
}

func toOpenAISchemas(openaiFormat []map[string]any) []modelplugin.ToolSchema {
	out := make([]modelplugin.ToolSchema, 0, len(openaiFormat))
	for _, entry := range openaiFormat {
		fn, _ := entry["function"].(map[string]any)
		var schema modelplugin.ToolSchema
		schema.Type = "function"
		schema.Function.Name, _ = fn["name"].(string)
		schema.Function.Description, _ = fn["description"].(string)
		switch params := fn["parameters"].(type) {
		case []byte:
			schema.Function.Parameters = json.RawMessage(params)
		case json.RawMessage:
			schema.Function.Parameters = params
		}
		out = append(out, schema)
	}
	return out
}
