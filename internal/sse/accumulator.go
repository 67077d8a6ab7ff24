package sse

import (
	"encoding/json"
	"strings"

	"github.com/user/llm-proxy-go/internal/tokencount"
)

// UsageResult is what Accumulator.Finalize produces: the full assembled
// output text (for truncated logging) plus the token count to record.
type UsageResult struct {
	OutputText                   string
	OutputPreview                string
	OutputPreviewTruncated       bool
	OutputTokens                 int
	UpstreamReportedOutputTokens *int
}

// Accumulator extracts incremental output text from an SSE stream and
// tallies output tokens, preferring an upstream-reported usage figure over
// the local tokenizer estimate.
type Accumulator struct {
	protocol     string
	model        string
	previewChars int

	decoder *Decoder
	counter tokencount.Counter

	textParts      []string
	upstreamTokens *int
}

func NewAccumulator(protocol, model string, previewChars int) *Accumulator {
	if previewChars <= 0 {
		previewChars = 4096
	}
	proto := strings.ToLower(protocol)
	if proto == "" {
		proto = "openai"
	}
	return &Accumulator{
		protocol:     proto,
		model:        model,
		previewChars: previewChars,
		decoder:      NewDecoder(),
		counter:      tokencount.ForProtocol(proto),
	}
}

// Feed processes one chunk of raw upstream bytes.
func (a *Accumulator) Feed(chunk []byte) {
	for _, payload := range a.decoder.Feed(chunk) {
		a.handlePayload(payload)
	}
}

// Finalize computes the accumulated result. Safe to call once, after the
// stream has ended.
func (a *Accumulator) Finalize() UsageResult {
	text := strings.Join(a.textParts, "")

	tokens := a.upstreamTokens
	outputTokens := 0
	if tokens != nil {
		outputTokens = *tokens
	} else {
		outputTokens = a.counter.CountTokens(text, a.model)
	}

	preview := text
	truncated := false
	if len(text) > a.previewChars {
		preview = text[:a.previewChars]
		truncated = true
	}

	return UsageResult{
		OutputText:                   text,
		OutputPreview:                 preview,
		OutputPreviewTruncated:       truncated,
		OutputTokens:                 outputTokens,
		UpstreamReportedOutputTokens: tokens,
	}
}

func (a *Accumulator) handlePayload(payload string) {
	if payload == "" || IsDone(payload) {
		return
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return
	}

	if a.protocol == "anthropic" {
		a.handleAnthropicEvent(data)
	} else {
		a.handleOpenAIEvent(data)
	}
}

func (a *Accumulator) handleOpenAIEvent(data map[string]any) {
	if usage, ok := data["usage"].(map[string]any); ok {
		if v, ok := intValue(usage["completion_tokens"]); ok {
			a.upstreamTokens = &v
		}
		if v, ok := intValue(usage["output_tokens"]); ok {
			a.upstreamTokens = &v
		}
	}

	choices, ok := data["choices"].([]any)
	if !ok {
		return
	}
	for _, c := range choices {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}

		if delta, ok := choice["delta"].(map[string]any); ok {
			if content, ok := delta["content"].(string); ok && content != "" {
				a.textParts = append(a.textParts, content)
			}
			if toolCalls, ok := delta["tool_calls"]; ok && toolCalls != nil {
				if b, err := json.Marshal(toolCalls); err == nil {
					a.textParts = append(a.textParts, string(b))
				}
			}
			continue
		}

		if text, ok := choice["text"].(string); ok && text != "" {
			a.textParts = append(a.textParts, text)
		}
	}
}

func (a *Accumulator) handleAnthropicEvent(data map[string]any) {
	eventType, _ := data["type"].(string)

	usage := asMap(data["usage"])
	if usage == nil {
		if msg := asMap(data["message"]); msg != nil {
			usage = asMap(msg["usage"])
		}
	}
	if usage == nil {
		if delta := asMap(data["delta"]); delta != nil {
			usage = asMap(delta["usage"])
		}
	}
	if usage != nil {
		if v, ok := intValue(usage["output_tokens"]); ok {
			a.upstreamTokens = &v
		}
	}

	if eventType == "content_block_delta" {
		if delta := asMap(data["delta"]); delta != nil {
			if text, ok := delta["text"].(string); ok && text != "" {
				a.textParts = append(a.textParts, text)
			}
		}
		return
	}

	if completion, ok := data["completion"].(string); ok && completion != "" {
		a.textParts = append(a.textParts, completion)
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func intValue(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}
