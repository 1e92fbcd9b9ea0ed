package contextmgr

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/entityruntime/agentcore/model"
	"github.com/entityruntime/agentcore/plan"
)

// CompressionThreshold is the §4.4 bit-exact constant: tool-response
// content longer than this is captured for possible compression.
const CompressionThreshold = 4000

// MaxDehydratedPairs bounds dehydrateToolHistory's result (§4.4).
const MaxDehydratedPairs = 10

// Summarizer renders oversized tool-response content into a compact
// placeholder. The zero value is not usable; use DefaultSummarizer.
type Summarizer func(toolName, content string) string

// entry is one captured tool-response, keyed by the responding tool call's
// ID, tracked per request by a Store.
type entry struct {
	toolName   string
	fullContent string
	charCount  int
	round      int
	compressed bool
}

// Store holds the per-request dehydration state: the full, uncompressed
// content of every large tool response seen so far, keyed by tool call ID.
// It is not safe for use across concurrent requests; callers construct one
// Store per in-flight request.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewStore constructs an empty per-request dehydration Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// CaptureRound scans messages for tool-responses belonging to round that
// exceed CompressionThreshold and are not yet tracked, recording their full
// content so a later compression pass can restore it for synthesis.
func (s *Store) CaptureRound(messages []*model.Message, round int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		if m.Role != model.RoleTool {
			continue
		}
		if _, ok := s.entries[m.ToolCallID]; ok {
			continue
		}
		content := m.Text()
		if len(content) <= CompressionThreshold {
			continue
		}
		s.entries[m.ToolCallID] = &entry{
			toolName:    m.ToolName,
			fullContent: content,
			charCount:   len(content),
			round:       round,
			compressed:  false,
		}
	}
}

// CompressOlderToolResults replaces, in place within messages, the content
// of every tracked tool-response whose round is older than currentRound and
// is not yet compressed, using toolSummarizer (or DefaultSummarizer when
// toolSummarizer is nil for that tool).
func (s *Store) CompressOlderToolResults(messages []*model.Message, currentRound int, summarizerFor func(toolName string) Summarizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		if m.Role != model.RoleTool {
			continue
		}
		e, ok := s.entries[m.ToolCallID]
		if !ok || e.compressed || e.round >= currentRound {
			continue
		}
		summarize := DefaultSummarizer
		if summarizerFor != nil {
			if custom := summarizerFor(e.toolName); custom != nil {
				summarize = custom
			}
		}
		compacted := summarize(e.toolName, e.fullContent)
		m.Parts = []model.Part{model.TextPart{Text: compacted}}
		e.compressed = true
	}
}

// Rehydrate restores every tracked tool-response in messages to its full
// content and resets every store entry's compressed flag, per §4.4's
// "before the final primary-model call" rehydration step.
func (s *Store) Rehydrate(messages []*model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		if m.Role != model.RoleTool {
			continue
		}
		e, ok := s.entries[m.ToolCallID]
		if !ok {
			continue
		}
		m.Parts = []model.Part{model.TextPart{Text: e.fullContent}}
		e.compressed = false
	}
}

// DefaultSummarizer implements the §4.4 fallback summarization rules when a
// tool has no tool-specific Summarizer registered.
func DefaultSummarizer(_ string, content string) string {
	var generic struct {
		Type  string `json:"_type"`
		Value []struct {
			SearchResultID string `json:"searchResultId"`
			Title          string `json:"title"`
			URL            string `json:"url"`
			Content        string `json:"content"`
		} `json:"value"`
	}
	if err := json.Unmarshal([]byte(content), &generic); err == nil && generic.Type == "SearchResponse" {
		compact := make([]map[string]any, 0, len(generic.Value))
		for _, v := range generic.Value {
			compact = append(compact, map[string]any{
				"searchResultId": v.SearchResultID,
				"title":          v.Title,
				"url":            v.URL,
				"content":        truncate(v.Content, 200) + "...",
			})
		}
		out, _ := json.Marshal(map[string]any{"_compressed": true, "value": compact})
		return string(out)
	}

	var withContent struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &withContent); err == nil && withContent.Content != "" {
		out, _ := json.Marshal(map[string]any{
			"_compressed":    true,
			"_originalChars": len(content),
			"content":        truncate(withContent.Content, 300),
		})
		return string(out)
	}

	return truncate(content, 500) + "\n[Compressed — full content will be restored for final synthesis]"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// DehydrateToolHistory extracts alternating assistant/tool-response pairs
// from history starting at startIndex, stripping SetGoals calls and their
// responses and compressing any oversized tool-response content, returning
// at most the last MaxDehydratedPairs pairs for attachment to the request's
// pathway result data.
func DehydrateToolHistory(history []*model.Message, startIndex int) []*model.Message {
	if startIndex < 0 || startIndex >= len(history) {
		return nil
	}
	type pair struct {
		assistant *model.Message
		responses []*model.Message
	}
	var pairs []pair
	i := startIndex
	for i < len(history) {
		m := history[i]
		if m.Role != model.RoleAssistant || len(m.ToolCalls) == 0 {
			i++
			continue
		}
		goalsOnly := true
		var calls []model.ToolCall
		for _, tc := range m.ToolCalls {
			if plan.IsSetGoals(tc.Name) {
				continue
			}
			goalsOnly = false
			calls = append(calls, tc)
		}
		callIDs := make(map[string]bool, len(calls))
		for _, c := range calls {
			callIDs[c.ID] = true
		}
		j := i + 1
		var responses []*model.Message
		for j < len(history) && history[j].Role == model.RoleTool {
			if callIDs[history[j].ToolCallID] {
				resp := history[j].Clone()
				if len(resp.Text()) > CompressionThreshold {
					resp.Parts = []model.Part{model.TextPart{Text: DefaultSummarizer(resp.ToolName, resp.Text())}}
				}
				responses = append(responses, resp)
			}
			j++
		}
		if !goalsOnly && len(calls) > 0 {
			assistantClone := m.Clone()
			assistantClone.ToolCalls = calls
			pairs = append(pairs, pair{assistant: assistantClone, responses: responses})
		}
		i = j
	}
	if len(pairs) > MaxDehydratedPairs {
		pairs = pairs[len(pairs)-MaxDehydratedPairs:]
	}
	out := make([]*model.Message, 0, len(pairs)*2)
	for _, p := range pairs {
		out = append(out, p.assistant)
		out = append(out, p.responses...)
	}
	return out
}

// Summary renders a human-readable "[Context Summary: N tool calls and M
// results…]" string describing dehydrated pairs, for use as the injected
// context-summary user message (§4.4 window-compression step 4).
func Summary(pairs []*model.Message) string {
	var calls, results int
	for _, m := range pairs {
		if m.Role == model.RoleAssistant {
			calls += len(m.ToolCalls)
		} else if m.Role == model.RoleTool {
			results++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[Context Summary: %d tool calls and %d results omitted for brevity]", calls, results)
	return b.String()
}
