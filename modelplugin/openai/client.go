// Package openai implements the model plugin contract (§6) over the OpenAI
// Chat Completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/modelplugin"
	"github.com/entityruntime/agentcore/stream"
)

// ChatClient captures the subset of the openai-go client this plugin uses,
// satisfied by the real client's Chat.Completions service or a test double.
type ChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// Options configures the OpenAI plugin.
type Options struct {
	// DefaultModel is used when CallArgs.ModelOverride is empty.
	DefaultModel string
	// MaxPromptTokens reports this model's context window for
	// ContextManager compression thresholds.
	MaxPromptTokens int
}

// Client implements modelplugin.Plugin over OpenAI Chat Completions.
type Client struct {
	chat         ChatClient
	defaultModel string
	maxPrompt    int
}

// New builds an OpenAI-backed plugin from an existing Chat Completions
// client.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	maxPrompt := opts.MaxPromptTokens
	if maxPrompt <= 0 {
		maxPrompt = 128000
	}
	return &Client{chat: chat, defaultModel: opts.DefaultModel, maxPrompt: maxPrompt}, nil
}

// NewFromAPIKey constructs a plugin using the default openai-go HTTP
// client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions, Options{DefaultModel: defaultModel})
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
		s := c.chat.NewStreaming(ctx, *params)
		if err := s.Err(); err != nil {
			return nil, nil, fmt.Errorf("openai: chat completions stream: %w", err)
		}
		return nil, newHandle(s), nil
	}
	completion, err := c.chat.New(ctx, *params)
	if err != nil {
		return nil, nil, fmt.Errorf("openai: chat completions: %w", err)
	}
	return translateResult(completion), nil, nil
}

func (c *Client) prepareParams(args modelplugin.CallArgs) (*openai.ChatCompletionNewParams, error) {
	if len(args.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := args.ModelOverride
	if modelID == "" {
		modelID = c.defaultModel
	}
	msgs, err := encodeMessages(args.Messages)
	if err != nil {
		return nil, err
	}
	params := &openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: msgs,
	}
	if len(args.Tools) > 0 {
		params.Tools = encodeTools(args.Tools)
	}
	return params, nil
}

func encodeMessages(msgs []*model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		text := m.Text()
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(text))
		case model.RoleUser:
			out = append(out, openai.UserMessage(text))
		case model.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(text))
				continue
			}
			msg := openai.ChatCompletionAssistantMessageParam{}
			if text != "" {
				msg.Content.OfString = openai.String(text)
			}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		case model.RoleTool:
			out = append(out, openai.ToolMessage(text, m.ToolCallID))
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
}

func encodeTools(schemas []modelplugin.ToolSchema) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(schemas))
	for _, s := range schemas {
		var params map[string]any
		_ = json.Unmarshal(s.Function.Parameters, &params)
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        s.Function.Name,
				Description: openai.String(s.Function.Description),
				Parameters:  params,
			},
		})
	}
	return out
}

func translateResult(completion *openai.ChatCompletion) *modelplugin.Result {
	res := &modelplugin.Result{}
	if len(completion.Choices) == 0 {
		return res
	}
	choice := completion.Choices[0]
	res.OutputText = choice.Message.Content
	res.FinishReason = choice.FinishReason
	for _, tc := range choice.Message.ToolCalls {
		res.ToolCalls = append(res.ToolCalls, model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	res.Usage = &model.Usage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}
	return res
}

// handle adapts ssestream.Stream[openai.ChatCompletionChunk] to
// stream.Handle, translating chunks into the `choices[].delta.content` /
// finish_reason shape stream.Pipeline's parser recognizes, and
// accumulating any streamed tool_calls for ToolCalls().
type handle struct {
	src *ssestream.Stream[openai.ChatCompletionChunk]

	mu        sync.Mutex
	toolCalls map[int]*model.ToolCall

	out  chan stream.RawEvent
	done chan struct{}
}

func newHandle(src *ssestream.Stream[openai.ChatCompletionChunk]) *handle {
	h := &handle{
		src:       src,
		toolCalls: make(map[int]*model.ToolCall),
		out:       make(chan stream.RawEvent, 16),
		done:      make(chan struct{}),
	}
	go h.pump()
	return h
}

func (h *handle) pump() {
	defer close(h.out)
	for h.src.Next() {
		chunk := h.src.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		for _, tc := range choice.Delta.ToolCalls {
			h.mu.Lock()
			cur, ok := h.toolCalls[int(tc.Index)]
			if !ok {
				cur = &model.ToolCall{ID: tc.ID, Name: tc.Function.Name}
				h.toolCalls[int(tc.Index)] = cur
			}
			cur.Arguments += tc.Function.Arguments
			h.mu.Unlock()
		}
		raw, _ := json.Marshal(chunk)
		select {
		case h.out <- stream.RawEvent{Data: raw}:
		case <-h.done:
			return
		}
	}
	if err := h.src.Err(); err != nil {
		b, _ := json.Marshal(map[string]any{"error": map[string]any{"message": err.Error()}})
		select {
		case h.out <- stream.RawEvent{Data: b}:
		case <-h.done:
		}
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
	out := make([]model.ToolCall, 0, len(h.toolCalls))
	for _, tc := range h.toolCalls {
		out = append(out, *tc)
	}
	return out
}
