package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulator_OpenAIChatDelta(t *testing.T) {
	a := NewAccumulator("openai", "gpt-4", 4096)
	a.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n"))
	a.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n"))
	a.Feed([]byte("data: [DONE]\n\n"))

	result := a.Finalize()
	assert.Equal(t, "Hello", result.OutputText)
	assert.Nil(t, result.UpstreamReportedOutputTokens)
	assert.Greater(t, result.OutputTokens, 0)
}

func TestAccumulator_OpenAIUpstreamUsageWins(t *testing.T) {
	a := NewAccumulator("openai", "gpt-4", 4096)
	a.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
	a.Feed([]byte("data: {\"usage\":{\"completion_tokens\":42}}\n\n"))

	result := a.Finalize()
	assert.NotNil(t, result.UpstreamReportedOutputTokens)
	assert.Equal(t, 42, *result.UpstreamReportedOutputTokens)
	assert.Equal(t, 42, result.OutputTokens)
}

func TestAccumulator_AnthropicContentBlockDelta(t *testing.T) {
	a := NewAccumulator("anthropic", "claude-3-opus", 4096)
	a.Feed([]byte("data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"Hi there\"}}\n\n"))

	result := a.Finalize()
	assert.Equal(t, "Hi there", result.OutputText)
}

func TestAccumulator_AnthropicMessageDeltaUsage(t *testing.T) {
	a := NewAccumulator("anthropic", "claude-3-opus", 4096)
	a.Feed([]byte("data: {\"type\":\"message_delta\",\"delta\":{\"usage\":{\"output_tokens\":17}}}\n\n"))

	result := a.Finalize()
	assert.NotNil(t, result.UpstreamReportedOutputTokens)
	assert.Equal(t, 17, *result.UpstreamReportedOutputTokens)
}

func TestAccumulator_PreviewTruncation(t *testing.T) {
	a := NewAccumulator("openai", "gpt-4", 4)
	a.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hello world\"}}]}\n\n"))

	result := a.Finalize()
	assert.Equal(t, "hell", result.OutputPreview)
	assert.True(t, result.OutputPreviewTruncated)
}

func TestAccumulator_MalformedJSONIgnored(t *testing.T) {
	a := NewAccumulator("openai", "gpt-4", 4096)
	a.Feed([]byte("data: not-json\n\n"))
	result := a.Finalize()
	assert.Equal(t, "", result.OutputText)
}
