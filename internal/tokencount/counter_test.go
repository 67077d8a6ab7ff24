package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForProtocol(t *testing.T) {
	assert.IsType(t, &AnthropicCounter{}, ForProtocol("anthropic"))
	assert.IsType(t, &OpenAICounter{}, ForProtocol("openai"))
	assert.IsType(t, &OpenAICounter{}, ForProtocol("unknown"))
}

func TestAnthropicCounter_EmptyText(t *testing.T) {
	c := NewAnthropicCounter()
	assert.Equal(t, 0, c.CountTokens("", "claude-3-opus"))
}

func TestAnthropicCounter_CountMessages(t *testing.T) {
	c := NewAnthropicCounter()
	messages := []map[string]any{
		{"role": "user", "content": "hello world this is eight characters"},
	}
	tokens := c.CountMessages(messages, "claude-3-opus")
	assert.Greater(t, tokens, 4)
}

func TestAnthropicCounter_EmptyMessages(t *testing.T) {
	c := NewAnthropicCounter()
	assert.Equal(t, 0, c.CountMessages(nil, "claude-3-opus"))
}

func TestOpenAICounter_CountMessages_NameFieldReducesOverhead(t *testing.T) {
	c := NewOpenAICounter()
	withoutName := c.CountMessages([]map[string]any{
		{"role": "user", "content": "hi"},
	}, "gpt-4")
	withName := c.CountMessages([]map[string]any{
		{"role": "user", "content": "hi", "name": "alice"},
	}, "gpt-4")
	// withName includes extra tokens for the name string itself, minus 1 for
	// the per-message name discount; just assert both are sane positive counts.
	assert.Greater(t, withoutName, 0)
	assert.Greater(t, withName, 0)
}

func TestOpenAICounter_EmptyMessages(t *testing.T) {
	c := NewOpenAICounter()
	assert.Equal(t, 0, c.CountMessages(nil, "gpt-4"))
}
