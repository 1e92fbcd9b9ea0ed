// Package bedrock implements the model plugin contract (§6) over the AWS
// Bedrock Converse API.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/modelplugin"
	"github.com/entityruntime/agentcore/stream"
)

// RuntimeClient captures the subset of the AWS Bedrock runtime client this
// plugin uses, satisfied by *bedrockruntime.Client or a test double.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Options configures the Bedrock plugin.
type Options struct {
	// DefaultModel is used when CallArgs.ModelOverride is empty.
	DefaultModel string
	// MaxTokens bounds completion length; zero omits the field and lets
	// Bedrock apply its own default.
	MaxTokens int
	// MaxPromptTokens reports this model's context window for
	// ContextManager compression thresholds.
	MaxPromptTokens int
}

// Client implements modelplugin.Plugin over AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	maxTokens    int
	maxPrompt    int
}

// New builds a Bedrock-backed plugin from an existing runtime client.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model identifier is required")
	}
	maxPrompt := opts.MaxPromptTokens
	if maxPrompt <= 0 {
		maxPrompt = 200000
	}
	return &Client{runtime: runtime, defaultModel: opts.DefaultModel, maxTokens: opts.MaxTokens, maxPrompt: maxPrompt}, nil
}

// GetModelMaxPromptTokens implements modelplugin.Plugin.
func (c *Client) GetModelMaxPromptTokens() int { return c.maxPrompt }

// Call implements modelplugin.Plugin.
func (c *Client) Call(ctx context.Context, args modelplugin.CallArgs) (*modelplugin.Result, stream.Handle, error) {
	msgs, system, err := encodeMessages(args.Messages)
	if err != nil {
		return nil, nil, err
	}
	modelID := args.ModelOverride
	if modelID == "" {
		modelID = c.defaultModel
	}
	var toolConfig *brtypes.ToolConfiguration
	if len(args.Tools) > 0 {
		toolConfig, err = encodeTools(args.Tools)
		if err != nil {
			return nil, nil, err
		}
	}
	var inferenceConfig *brtypes.InferenceConfiguration
	if c.maxTokens > 0 {
		inferenceConfig = &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(int32(c.maxTokens))}
	}

	if args.Stream {
		out, err := c.runtime.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
			ModelId:         aws.String(modelID),
			Messages:        msgs,
			System:          system,
			ToolConfig:      toolConfig,
			InferenceConfig: inferenceConfig,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("bedrock: converse stream: %w", unwrapSmithy(err))
		}
		return nil, newHandle(out), nil
	}

	out, err := c.runtime.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(modelID),
		Messages:        msgs,
		System:          system,
		ToolConfig:      toolConfig,
		InferenceConfig: inferenceConfig,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("bedrock: converse: %w", unwrapSmithy(err))
	}
	return translateResult(out), nil, nil
}

func unwrapSmithy(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err
}

func encodeMessages(msgs []*model.Message) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	system := make([]brtypes.SystemContentBlock, 0, len(msgs))

	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == model.RoleSystem {
			if text := m.Text(); text != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: text})
			}
			continue
		}

		var blocks []brtypes.ContentBlock
		if text := m.Text(); text != "" {
			blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: text})
		}
		for _, tc := range m.ToolCalls {
			var input any
			_ = json.Unmarshal([]byte(tc.Arguments), &input)
			blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
				ToolUseId: aws.String(tc.ID),
				Name:      aws.String(tc.Name),
				Input:     document.NewLazyDocument(input),
			}})
		}
		if m.Role == model.RoleTool {
			blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
				ToolUseId: aws.String(m.ToolCallID),
				Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: m.Text()}},
			}})
		}
		if len(blocks) == 0 {
			continue
		}

		var role brtypes.ConversationRole
		switch m.Role {
		case model.RoleUser, model.RoleTool:
			role = brtypes.ConversationRoleUser
		case model.RoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return nil, nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeTools(schemas []modelplugin.ToolSchema) (*brtypes.ToolConfiguration, error) {
	toolList := make([]brtypes.Tool, 0, len(schemas))
	for _, s := range schemas {
		var fields any
		if len(s.Function.Parameters) > 0 {
			if err := json.Unmarshal(s.Function.Parameters, &fields); err != nil {
				return nil, fmt.Errorf("bedrock: tool %q schema: %w", s.Function.Name, err)
			}
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(s.Function.Name),
			Description: aws.String(s.Function.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(fields)},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: toolList}, nil
}

func translateResult(out *bedrockruntime.ConverseOutput) *modelplugin.Result {
	res := &modelplugin.Result{}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return res
	}
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			res.OutputText += b.Value
		case *brtypes.ContentBlockMemberToolUse:
			argsJSON := decodeDocument(b.Value.Input)
			res.ToolCalls = append(res.ToolCalls, model.ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: string(argsJSON),
			})
		}
	}
	res.FinishReason = string(out.StopReason)
	if out.Usage != nil {
		res.Usage = &model.Usage{
			PromptTokens:     int(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return res
}

func decodeDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	var v any
	if err := doc.UnmarshalSmithyDocument(&v); err != nil {
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}

// handle adapts bedrockruntime's eventstream reader to stream.Handle,
// translating Converse's native event shapes into the
// {"type":"content_block_delta","delta":{"text":...}} / {"type":
// "message_stop"} shapes stream.Pipeline's parser recognizes, and
// accumulating tool_use deltas for ToolCalls().
type handle struct {
	src *bedrockruntime.ConverseStreamOutput

	mu        sync.Mutex
	toolCalls []model.ToolCall
	pending   map[int32]*pendingToolUse

	out  chan stream.RawEvent
	done chan struct{}
}

type pendingToolUse struct {
	id, name string
	args     strings.Builder
}

func newHandle(src *bedrockruntime.ConverseStreamOutput) *handle {
	h := &handle{
		src:     src,
		pending: make(map[int32]*pendingToolUse),
		out:     make(chan stream.RawEvent, 16),
		done:    make(chan struct{}),
	}
	go h.pump()
	return h
}

func (h *handle) pump() {
	defer close(h.out)
	reader := h.src.GetStream()
	for event := range reader.Events() {
		switch e := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockStart:
			if start, ok := e.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
				h.mu.Lock()
				h.pending[e.Value.ContentBlockIndex] = &pendingToolUse{id: aws.ToString(start.Value.ToolUseId), name: aws.ToString(start.Value.Name)}
				h.mu.Unlock()
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			switch d := e.Value.Delta.(type) {
			case *brtypes.ContentBlockDeltaMemberText:
				h.emit(map[string]any{"type": "content_block_delta", "delta": map[string]any{"text": d.Value}})
			case *brtypes.ContentBlockDeltaMemberToolUse:
				h.mu.Lock()
				if p, ok := h.pending[e.Value.ContentBlockIndex]; ok {
					p.args.WriteString(aws.ToString(d.Value.Input))
				}
				h.mu.Unlock()
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockStop:
			h.mu.Lock()
			if p, ok := h.pending[e.Value.ContentBlockIndex]; ok {
				h.toolCalls = append(h.toolCalls, model.ToolCall{ID: p.id, Name: p.name, Arguments: p.args.String()})
				delete(h.pending, e.Value.ContentBlockIndex)
			}
			h.mu.Unlock()
		case *brtypes.ConverseStreamOutputMemberMessageStop:
			h.emit(map[string]any{"type": "message_stop"})
		}
	}
	if err := reader.Err(); err != nil {
		h.emit(map[string]any{"error": map[string]any{"message": unwrapSmithy(err).Error()}})
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
	return h.src.GetStream().Close()
}

func (h *handle) ToolCalls() []model.ToolCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.ToolCall(nil), h.toolCalls...)
}
