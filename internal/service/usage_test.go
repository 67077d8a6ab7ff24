package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractOutputTokens_OpenAIChatCompletion(t *testing.T) {
	body := []byte(`{"usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":30}}`)
	tokens, ok := ExtractOutputTokens(body)
	assert.True(t, ok)
	assert.Equal(t, 20, tokens)
}

func TestExtractOutputTokens_AnthropicMessages(t *testing.T) {
	body := []byte(`{"usage":{"input_tokens":5,"output_tokens":12}}`)
	tokens, ok := ExtractOutputTokens(body)
	assert.True(t, ok)
	assert.Equal(t, 12, tokens)
}

func TestExtractOutputTokens_NestedUnderMessage(t *testing.T) {
	body := []byte(`{"message":{"usage":{"output_tokens":7}}}`)
	tokens, ok := ExtractOutputTokens(body)
	assert.True(t, ok)
	assert.Equal(t, 7, tokens)
}

func TestExtractOutputTokens_FallbackTotalMinusPrompt(t *testing.T) {
	body := []byte(`{"usage":{"prompt_tokens":10,"total_tokens":30}}`)
	tokens, ok := ExtractOutputTokens(body)
	assert.True(t, ok)
	assert.Equal(t, 20, tokens)
}

func TestExtractOutputTokens_NotJSON(t *testing.T) {
	_, ok := ExtractOutputTokens([]byte("not json at all"))
	assert.False(t, ok)
}

func TestExtractOutputTokens_NoUsageBlock(t *testing.T) {
	_, ok := ExtractOutputTokens([]byte(`{"id":"abc"}`))
	assert.False(t, ok)
}
