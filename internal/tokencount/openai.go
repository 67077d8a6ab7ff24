package tokencount

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// modelEncodingPrefixes maps a model name prefix to its tiktoken encoding.
// Checked in order; cl100k_base covers everything not explicitly listed.
var modelEncodingPrefixes = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5-turbo", "cl100k_base"},
	{"text-embedding-ada-002", "cl100k_base"},
	{"text-davinci-003", "p50k_base"},
}

// OpenAICounter counts tokens using tiktoken, falling back to a chars/4
// estimate when an encoding can't be loaded.
type OpenAICounter struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

func NewOpenAICounter() *OpenAICounter {
	return &OpenAICounter{encodings: make(map[string]*tiktoken.Tiktoken)}
}

func (c *OpenAICounter) encodingFor(model string) *tiktoken.Tiktoken {
	name := defaultEncoding
	for _, m := range modelEncodingPrefixes {
		if strings.HasPrefix(model, m.prefix) {
			name = m.encoding
			break
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodings[name]; ok {
		return enc
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil
	}
	c.encodings[name] = enc
	return enc
}

// CountTokens counts a single string, falling back to a chars/4 estimate if
// the encoding can't be loaded.
func (c *OpenAICounter) CountTokens(text, model string) int {
	if text == "" {
		return 0
	}
	if enc := c.encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimateByChars(text)
}

// CountMessages replicates the OpenAI chat overhead formula: 4 tokens per
// message, -1 if it carries a "name" field, +3 for the reply priming.
func (c *OpenAICounter) CountMessages(messages []map[string]any, model string) int {
	if len(messages) == 0 {
		return 0
	}

	total := 0
	for _, msg := range messages {
		total += 4
		for key, value := range msg {
			switch v := value.(type) {
			case string:
				total += c.CountTokens(v, model)
			default:
				if text, ok := extractMultimodalText(value); ok {
					total += c.CountTokens(text, model)
				}
			}
			if key == "name" {
				total--
			}
		}
	}
	total += 3
	return total
}
