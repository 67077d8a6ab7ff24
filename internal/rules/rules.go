// Package rules implements the matching-rule language used to pick
// candidate providers for a requested model: field-path resolution against a
// RequestContext, a closed operator set, and AND/OR ruleset combination.
//
// The Rule/RuleSet types themselves live in the models package (they are
// part of the persisted data model, see models/gateway.go); this package
// only evaluates them.
package rules

import "github.com/user/llm-proxy-go/internal/models"

// Rule and RuleSet are aliased here so callers that only touch the
// evaluation surface don't need to import models directly for the common
// case of constructing ad hoc rules (e.g. in tests).
type Rule = models.Rule
type RuleSet = models.RuleSet

const (
	LogicAND = models.RuleLogicAND
	LogicOR  = models.RuleLogicOR
)
