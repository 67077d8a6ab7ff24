package service

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const (
	defaultMaxArrayElems = 20
	defaultMaxStringLen  = 2000
)

// TruncateString truncates s to maxLen runes, appending "..." when it had
// to cut anything short.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// SmartTruncateValue walks a JSON-decoded value and truncates it for log
// storage: numeric/generic arrays longer than maxArrayElems keep their first
// maxArrayElems entries plus a "…(K items)…" marker describing how many were
// dropped, and strings longer than maxStringLen are truncated via
// TruncateString. Maps and nested arrays are walked recursively.
func SmartTruncateValue(value any, maxArrayElems, maxStringLen int) any {
	switch v := value.(type) {
	case string:
		return TruncateString(v, maxStringLen)
	case []any:
		return smartTruncateArray(v, maxArrayElems, maxStringLen)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = SmartTruncateValue(val, maxArrayElems, maxStringLen)
		}
		return out
	default:
		return v
	}
}

func smartTruncateArray(arr []any, maxArrayElems, maxStringLen int) []any {
	if len(arr) <= maxArrayElems {
		out := make([]any, len(arr))
		for i, v := range arr {
			out[i] = SmartTruncateValue(v, maxArrayElems, maxStringLen)
		}
		return out
	}

	dropped := len(arr) - maxArrayElems
	out := make([]any, 0, maxArrayElems+1)
	for _, v := range arr[:maxArrayElems] {
		out = append(out, SmartTruncateValue(v, maxArrayElems, maxStringLen))
	}
	out = append(out, fmt.Sprintf("…(%d items)…", dropped))
	return out
}

// SmartTruncateJSON applies SmartTruncateValue with the gateway's default
// limits for request/response log bodies.
func SmartTruncateJSON(value any) any {
	return SmartTruncateValue(value, defaultMaxArrayElems, defaultMaxStringLen)
}

// PreviewBody renders a raw response body for log storage: parsed-and-
// truncated JSON when it decodes, a best-effort decoded string for valid
// UTF-8 non-JSON text, or a byte-count marker for binary data.
func PreviewBody(raw []byte) any {
	if len(raw) == 0 {
		return ""
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err == nil {
		return SmartTruncateJSON(parsed)
	}

	if utf8.Valid(raw) {
		return TruncateString(string(raw), defaultMaxStringLen)
	}

	return fmt.Sprintf("[binary data: %d bytes]", len(raw))
}
