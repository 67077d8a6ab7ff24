package rules

import (
	"regexp"
	"strings"

	"github.com/user/llm-proxy-go/internal/models"
)

// EvaluateRule evaluates a single rule against ctx. Any type mismatch,
// unknown operator, or internal error resolves to false rather than
// propagating — the rule language never panics or aborts candidate
// resolution.
func EvaluateRule(rule Rule, ctx *models.RequestContext) bool {
	actual, resolved := GetValue(ctx, rule.Field)

	switch strings.ToLower(rule.Operator) {
	case "eq":
		return resolved && looseEqual(actual, rule.Value)
	case "ne":
		return !resolved || !looseEqual(actual, rule.Value)
	case "gt":
		return compareNumeric(actual, rule.Value, func(a, b float64) bool { return a > b })
	case "gte":
		return compareNumeric(actual, rule.Value, func(a, b float64) bool { return a >= b })
	case "lt":
		return compareNumeric(actual, rule.Value, func(a, b float64) bool { return a < b })
	case "lte":
		return compareNumeric(actual, rule.Value, func(a, b float64) bool { return a <= b })
	case "contains":
		s, ok := actual.(string)
		if !ok {
			return false
		}
		sub, ok := rule.Value.(string)
		if !ok {
			return false
		}
		return strings.Contains(s, sub)
	case "not_contains":
		s, ok := actual.(string)
		if !ok {
			return true
		}
		sub, ok := rule.Value.(string)
		if !ok {
			return true
		}
		return !strings.Contains(s, sub)
	case "regex":
		s, ok := actual.(string)
		if !ok {
			return false
		}
		pattern, ok := rule.Value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	case "in":
		list, ok := rule.Value.([]any)
		if !ok {
			return false
		}
		return resolved && containsValue(list, actual)
	case "not_in":
		list, ok := rule.Value.([]any)
		if !ok {
			return true
		}
		return !resolved || !containsValue(list, actual)
	case "exists":
		want, ok := rule.Value.(bool)
		if !ok {
			return false
		}
		return resolved == want
	default:
		return false
	}
}

// EvaluateRuleSet evaluates an entire ruleset. A nil or empty ruleset always
// passes.
func EvaluateRuleSet(rs *RuleSet, ctx *models.RequestContext) bool {
	if rs.IsEmpty() {
		return true
	}
	if rs.NormalizedLogic() == LogicOR {
		for _, r := range rs.Rules {
			if EvaluateRule(r, ctx) {
				return true
			}
		}
		return false
	}
	for _, r := range rs.Rules {
		if !EvaluateRule(r, ctx) {
			return false
		}
	}
	return true
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if looseEqual(item, v) {
			return true
		}
	}
	return false
}

// looseEqual compares JSON-decoded scalars, treating numeric values
// uniformly regardless of whether they arrived as int or float64.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

// compareNumeric implements the ordered operators. Per spec, comparing
// against a missing/non-numeric field is always false.
func compareNumeric(actual, expected any, cmp func(a, b float64) bool) bool {
	af, aok := toFloat(actual)
	bf, bok := toFloat(expected)
	if !aok || !bok {
		return false
	}
	return cmp(af, bf)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
