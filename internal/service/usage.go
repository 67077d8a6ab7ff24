package service

import (
	"encoding/json"
	"strings"
)

// ExtractOutputTokens best-effort parses an opaque, possibly raw-passthrough
// response body and returns the upstream-reported output token count, for
// requests the proxy forwards without fully decoding the JSON body. Returns
// (0, false) when body isn't a JSON object/array or carries no usage block.
func ExtractOutputTokens(body []byte) (int, bool) {
	obj, ok := coerceJSONObject(body)
	if !ok {
		return 0, false
	}

	usage, ok := extractUsageMap(obj)
	if !ok {
		return 0, false
	}

	if v, ok := intField(usage, "completion_tokens"); ok {
		return v, true
	}
	if v, ok := intField(usage, "output_tokens"); ok {
		return v, true
	}
	total, hasTotal := intField(usage, "total_tokens")
	prompt, hasPrompt := intField(usage, "prompt_tokens")
	if hasTotal && hasPrompt && total >= prompt {
		return total - prompt, true
	}
	return 0, false
}

func coerceJSONObject(body []byte) (map[string]any, bool) {
	text := strings.TrimSpace(string(body))
	if text == "" || (text[0] != '{' && text[0] != '[') {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func extractUsageMap(obj map[string]any) (map[string]any, bool) {
	if usage, ok := obj["usage"].(map[string]any); ok {
		return usage, true
	}
	for _, key := range []string{"message", "delta", "response"} {
		if nested, ok := obj[key].(map[string]any); ok {
			if usage, ok := nested["usage"].(map[string]any); ok {
				return usage, true
			}
		}
	}
	return nil, false
}

func intField(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}
