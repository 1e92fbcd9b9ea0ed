package contextmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/entityruntime/agentcore/model"
)

// CompressionThresholdFraction is the §4.4/§6 bit-exact constant: context
// compression triggers once estimated tokens exceed this fraction of the
// model's max prompt tokens.
const CompressionThresholdFraction = 0.7

// DefaultModelContextLimit is the §6 bit-exact fallback max-prompt-tokens
// value used when a model plugin does not advertise one.
const DefaultModelContextLimit = 128000

// ImageTokenEstimate is the flat per-image token cost used by EstimateTokens
// (§4.4).
const ImageTokenEstimate = 85

// SummarizationTimeout bounds the external summarization-pathway call used
// by CompressWindow (§4.4, §6 constants).
const SummarizationTimeout = 60 * time.Second

const keepRecentDefault = 6

// EstimateTokens approximates the prompt-token cost of messages using the
// byte-length heuristic documented in DESIGN.md: 4 overhead tokens per
// message plus the encoded length of its textual content (images at a flat
// ImageTokenEstimate each), plus for every assistant tool_call, 10 overhead
// tokens plus the encoded length of its name and arguments.
func EstimateTokens(messages []*model.Message) int {
	total := 0
	for _, m := range messages {
		total += 4
		for _, p := range m.Parts {
			switch part := p.(type) {
			case model.TextPart:
				total += encodedLength(part.Text)
			case model.ImagePart:
				total += ImageTokenEstimate
			}
		}
		for _, tc := range m.ToolCalls {
			total += 10 + encodedLength(tc.Name) + encodedLength(tc.Arguments)
		}
	}
	return total
}

// encodedLength approximates token count as roughly 4 bytes per token, the
// standard heuristic absent an actual tokenizer (see DESIGN.md).
func encodedLength(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// ExternalSummarizer is the external summarization-pathway hook
// CompressWindow calls to condense the to-be-compressed region into prose.
// Implementations must honor ctx's deadline (§4.4: 60s timeout).
type ExternalSummarizer func(ctx context.Context, prose string) (string, error)

// CompressWindow implements the §4.4 token-threshold context-window
// compression pass. It is a no-op (returning messages unchanged) when the
// estimated token count does not exceed CompressionThresholdFraction of
// maxPromptTokens. maxPromptTokens <= 0 defaults to DefaultModelContextLimit.
func CompressWindow(ctx context.Context, messages []*model.Message, maxPromptTokens int, summarize ExternalSummarizer) ([]*model.Message, error) {
	if maxPromptTokens <= 0 {
		maxPromptTokens = DefaultModelContextLimit
	}
	if EstimateTokens(messages) <= int(float64(maxPromptTokens)*CompressionThresholdFraction) {
		return messages, nil
	}

	var system, rest []*model.Message
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	split := findSafeSplitPoint(rest, keepRecentDefault)
	toCompress := rest[:split]
	tail := rest[split:]

	toolRelated := 0
	for _, m := range toCompress {
		if m.Role == model.RoleAssistant && len(m.ToolCalls) > 0 {
			toolRelated++
		} else if m.Role == model.RoleTool {
			toolRelated++
		}
	}
	if toolRelated < 2 || len(toCompress) == 0 {
		return messages, nil
	}

	prose := renderProse(toCompress)
	sctx, cancel := context.WithTimeout(ctx, SummarizationTimeout)
	defer cancel()
	var summaryText string
	if summarize != nil {
		var err error
		summaryText, err = summarize(sctx, prose)
		if err != nil {
			return nil, fmt.Errorf("contextmgr: compress window: %w", err)
		}
	} else {
		summaryText = prose
	}

	originalQuery := firstOriginalUserQuery(rest)

	summaryCalls, summaryResults := 0, 0
	for _, m := range toCompress {
		if m.Role == model.RoleAssistant {
			summaryCalls += len(m.ToolCalls)
		} else if m.Role == model.RoleTool {
			summaryResults++
		}
	}
	summaryMsg := model.NewUserText(fmt.Sprintf(
		"[Context Summary: %d tool calls and %d results omitted for brevity]\n%s",
		summaryCalls, summaryResults, summaryText,
	))

	tail = filterOrphanedToolResponsesAgainstCompressed(tail, toCompress)

	out := make([]*model.Message, 0, len(system)+2+len(tail))
	out = append(out, system...)
	if originalQuery != nil {
		out = append(out, originalQuery)
	}
	out = append(out, summaryMsg)
	out = append(out, tail...)
	return out, nil
}

// findSafeSplitPoint locates the earliest index at or after len-keepRecent
// such that no kept tool-response's matching assistant tool_call lies
// before the split. It starts at len-keepRecent and walks the split earlier
// until stable (§4.4).
func findSafeSplitPoint(messages []*model.Message, keepRecent int) int {
	split := len(messages) - keepRecent
	if split < 0 {
		split = 0
	}
	for {
		moved := false
		for i := split; i < len(messages); i++ {
			if messages[i].Role != model.RoleTool {
				continue
			}
			idx := toolCallIndex(messages, messages[i].ToolCallID)
			if idx >= 0 && idx < split {
				split = idx
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	return split
}

// renderProse formats tool-related messages for summarization: tool calls
// rendered with a one-line goal extraction, tool results with their tool
// name.
func renderProse(messages []*model.Message) string {
	var out string
	for _, m := range messages {
		switch m.Role {
		case model.RoleAssistant:
			for _, tc := range m.ToolCalls {
				out += fmt.Sprintf("Called %s with arguments: %s\n", tc.Name, tc.Arguments)
			}
			if text := m.Text(); text != "" {
				out += text + "\n"
			}
		case model.RoleTool:
			out += fmt.Sprintf("Result from %s: %s\n", m.ToolName, m.Text())
		case model.RoleUser:
			out += "User: " + m.Text() + "\n"
		}
	}
	return out
}

// firstOriginalUserQuery returns the first non-system, non-context-summary
// user message, preserved verbatim across compression (§4.4).
func firstOriginalUserQuery(messages []*model.Message) *model.Message {
	for _, m := range messages {
		if m.Role != model.RoleUser {
			continue
		}
		text := m.Text()
		if len(text) >= 17 && text[:17] == "[Context Summary:" {
			continue
		}
		return m
	}
	return nil
}

// filterOrphanedToolResponsesAgainstCompressed drops tail tool-responses
// whose matching tool_call now lies in the compressed region.
func filterOrphanedToolResponsesAgainstCompressed(tail, compressed []*model.Message) []*model.Message {
	compressedCallIDs := make(map[string]bool)
	for _, m := range compressed {
		if m.Role == model.RoleAssistant {
			for _, tc := range m.ToolCalls {
				compressedCallIDs[tc.ID] = true
			}
		}
	}
	out := make([]*model.Message, 0, len(tail))
	for _, m := range tail {
		if m.Role == model.RoleTool && compressedCallIDs[m.ToolCallID] {
			continue
		}
		out = append(out, m)
	}
	return out
}
