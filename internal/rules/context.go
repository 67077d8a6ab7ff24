package rules

import (
	"strconv"
	"strings"

	"github.com/user/llm-proxy-go/internal/models"
)

// GetValue resolves a dotted/indexed field path against a RequestContext.
// Supported roots: "model", "headers.<key>", "body.<path>" (supporting
// "name[idx]" array-index segments), "token_usage.{input,output,total}_tokens".
// Returns (value, true) on success; (nil, false) if the path does not
// resolve — callers treat an unresolved path as "field missing", not an
// error.
func GetValue(ctx *models.RequestContext, field string) (any, bool) {
	switch {
	case field == "model":
		return ctx.CurrentModel, true
	case strings.HasPrefix(field, "headers."):
		key := strings.ToLower(strings.TrimPrefix(field, "headers."))
		v, ok := ctx.Headers[key]
		if !ok {
			return nil, false
		}
		return v, true
	case strings.HasPrefix(field, "body."):
		path := strings.TrimPrefix(field, "body.")
		return getNestedValue(ctx.RequestBody, path)
	case strings.HasPrefix(field, "token_usage."):
		return getTokenUsageValue(ctx.TokenUsage, strings.TrimPrefix(field, "token_usage."))
	default:
		return nil, false
	}
}

func getTokenUsageValue(tu models.TokenUsage, name string) (any, bool) {
	switch name {
	case "input_tokens":
		return tu.InputTokens, true
	case "output_tokens":
		return tu.OutputTokens, true
	case "total_tokens":
		return tu.TotalTokens(), true
	default:
		return nil, false
	}
}

// getNestedValue walks a dotted path into an arbitrary decoded-JSON value,
// handling "key[idx]" segments for list indexing.
func getNestedValue(root map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = root
	for _, seg := range strings.Split(path, ".") {
		key, idx, hasIdx := splitIndex(seg)

		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := m[key]
		if !ok {
			return nil, false
		}
		cur = next

		if hasIdx {
			list, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(list) {
				return nil, false
			}
			cur = list[idx]
		}
	}
	return cur, true
}

// splitIndex splits "name[3]" into ("name", 3, true); plain segments return
// (seg, 0, false).
func splitIndex(seg string) (string, int, bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return seg, 0, false
	}
	idxStr := seg[open+1 : len(seg)-1]
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return seg, 0, false
	}
	return seg[:open], idx, true
}
