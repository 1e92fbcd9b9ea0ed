// Package anthropic implements the model plugin contract (§6) over the
// Anthropic Claude Messages API, translating agentcore's provider-agnostic
// CallArgs/Result into sdk.MessageNewParams/sdk.Message and back.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/modelplugin"
	"github.com/entityruntime/agentcore/stream"
)

// MessagesClient captures the subset of the Anthropic SDK client this
// plugin uses, satisfied by *sdk.MessageService so callers can substitute a
// mock in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures the Anthropic plugin.
type Options struct {
	// DefaultModel is used when CallArgs.ModelOverride is empty.
	DefaultModel string
	// MaxTokens bounds completion length; required by the Messages API.
	MaxTokens int
	// MaxPromptTokens reports this model's context window for
	// ContextManager compression thresholds.
	MaxPromptTokens int
}

// Client implements modelplugin.Plugin over Anthropic Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
	maxPrompt    int
}

// New builds an Anthropic-backed plugin from an existing Messages client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	maxPrompt := opts.MaxPromptTokens
	if maxPrompt <= 0 {
		maxPrompt = 200000
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTokens: maxTokens, maxPrompt: maxPrompt}, nil
}

// NewFromAPIKey constructs a plugin using the default Anthropic HTTP
// client, reading ANTHROPIC_API_KEY from the environment.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// GetModelMaxPromptTokens implements modelplugin.Plugin.
func (c *Client) GetModelMaxPromptTokens() int { return c.maxPrompt }

// Call implements modelplugin.Plugin.
func (c *Client) Call(ctx context.Context, args modelplugin.CallArgs) (*modelplugin.Result, stream.Handle, error) {
	params, err := c.prepareParams(args)
	if err != nil {
		return nil, nil, err
	}
	if args.Stream {
		s := c.msg.NewStreaming(ctx, *params)
		if err := s.Err(); err != nil {
			return nil, nil, fmt.Errorf("anthropic: messages.new stream: %w", err)
		}
		return nil, newHandle(s), nil
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return nil, nil, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translateResult(msg), nil, nil
}

func (c *Client) prepareParams(args modelplugin.CallArgs) (*sdk.MessageNewParams, error) {
	if len(args.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := args.ModelOverride
	if modelID == "" {
		modelID = c.defaultModel
	}
	msgs, system, err := encodeMessages(args.Messages)
	if err != nil {
		return nil, err
	}
	params := &sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(c.maxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(args.Tools) > 0 {
		tools, err := encodeTools(args.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	return params, nil
}

func encodeMessages(msgs []*model.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0, len(msgs))

	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == model.RoleSystem {
			if text := m.Text(); text != "" {
				system = append(system, sdk.TextBlockParam{Text: text})
			}
			continue
		}

		var blocks []sdk.ContentBlockParamUnion
		for _, p := range m.Parts {
			if t, ok := p.(model.TextPart); ok && t.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(t.Text))
			}
		}
		for _, tc := range m.ToolCalls {
			var input any
			_ = json.Unmarshal([]byte(tc.Arguments), &input)
			blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if m.Role == model.RoleTool {
			blocks = append(blocks, sdk.NewToolResultBlock(m.ToolCallID, m.Text(), false))
		}
		if len(blocks) == 0 {
			continue
		}

		switch m.Role {
		case model.RoleUser, model.RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case model.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeTools(schemas []modelplugin.ToolSchema) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		var fields map[string]any
		if len(s.Function.Parameters) > 0 {
			if err := json.Unmarshal(s.Function.Parameters, &fields); err != nil {
				return nil, fmt.Errorf("anthropic: tool %q schema: %w", s.Function.Name, err)
			}
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: fields}, s.Function.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(s.Function.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func translateResult(msg *sdk.Message) *modelplugin.Result {
	res := &modelplugin.Result{}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			argsJSON, _ := json.Marshal(block.Input)
			res.ToolCalls = append(res.ToolCalls, model.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(argsJSON),
			})
		}
	}
	res.OutputText = text.String()
	res.FinishReason = string(msg.StopReason)
	res.Usage = &model.Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return res
}

// handle adapts ssestream.Stream[sdk.MessageStreamEventUnion] to
// stream.Handle, translating Anthropic's native event shapes into the
// {"type":"content_block_delta","delta":{"text":...}} / {"type":
// "message_stop"} shapes stream.Pipeline's parser recognizes, and
// accumulating any tool_use blocks for ToolCalls().
type handle struct {
	src *ssestream.Stream[sdk.MessageStreamEventUnion]

	mu        sync.Mutex
	toolCalls []model.ToolCall
	pending   map[int]*pendingToolUse

	out  chan stream.RawEvent
	done chan struct{}
}

type pendingToolUse struct {
	id, name string
	args     strings.Builder
}

func newHandle(src *ssestream.Stream[sdk.MessageStreamEventUnion]) *handle {
	h := &handle{
		src:     src,
		pending: make(map[int]*pendingToolUse),
		out:     make(chan stream.RawEvent, 16),
		done:    make(chan struct{}),
	}
	go h.pump()
	return h
}

func (h *handle) pump() {
	defer close(h.out)
	for h.src.Next() {
		event := h.src.Current()
		switch event.Type {
		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				h.mu.Lock()
				h.pending[int(event.Index)] = &pendingToolUse{id: event.ContentBlock.ID, name: event.ContentBlock.Name}
				h.mu.Unlock()
			}
		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				h.emit(map[string]any{"type": "content_block_delta", "delta": map[string]any{"text": event.Delta.Text}})
			case "input_json_delta":
				h.mu.Lock()
				if p, ok := h.pending[int(event.Index)]; ok {
					p.args.WriteString(event.Delta.PartialJSON)
				}
				h.mu.Unlock()
			}
		case "content_block_stop":
			h.mu.Lock()
			if p, ok := h.pending[int(event.Index)]; ok {
				h.toolCalls = append(h.toolCalls, model.ToolCall{ID: p.id, Name: p.name, Arguments: p.args.String()})
				delete(h.pending, int(event.Index))
			}
			h.mu.Unlock()
		case "message_stop":
			h.emit(map[string]any{"type": "message_stop"})
		}
	}
	if err := h.src.Err(); err != nil {
		h.emit(map[string]any{"error": map[string]any{"message": err.Error()}})
	}
}

func (h *handle) emit(v map[string]any) {
	b, _ := json.Marshal(v)
	select {
	case h.out <- stream.RawEvent{Data: b}:
	case <-h.done:
	}
}

func (h *handle) Events() <-chan stream.RawEvent { return h.out }

func (h *handle) Close() error {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	return h.src.Close()
}

func (h *handle) ToolCalls() []model.ToolCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.ToolCall(nil), h.toolCalls...)
}
