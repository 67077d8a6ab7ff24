package rules

import (
	"sort"

	"github.com/user/llm-proxy-go/internal/models"
)

// Engine runs the model-level ruleset then each active provider mapping's
// ruleset against a RequestContext, producing a deterministically ordered
// candidate list.
type Engine struct{}

// NewEngine constructs a RuleEngine. It holds no state — kept as a type so
// call sites can depend on an interface-shaped value and for symmetry with
// the rest of the pipeline's constructors.
func NewEngine() *Engine {
	return &Engine{}
}

// Resolve implements spec.md §4.8: step 1 model-level gate, step 2 per
// provider-mapping filter + rule evaluation, step 3 stable sort by
// (priority, provider_id).
func (e *Engine) Resolve(
	ctx *models.RequestContext,
	mapping *models.ModelMapping,
	mappingProviders []*models.ModelMappingProvider,
	providers map[int64]*models.Provider,
) []models.CandidateProvider {
	if !EvaluateRuleSet(ruleSetOf(mapping), ctx) {
		return nil
	}

	candidates := make([]models.CandidateProvider, 0, len(mappingProviders))
	for _, mp := range mappingProviders {
		if !mp.IsActive {
			continue
		}
		p, ok := providers[mp.ProviderID]
		if !ok || !p.IsActive {
			continue
		}
		if !EvaluateRuleSet(providerRuleSetOf(mp), ctx) {
			continue
		}
		candidates = append(candidates, models.CandidateProvider{
			ProviderID:   p.ID,
			ProviderName: p.Name,
			BaseURL:      p.BaseURL,
			Protocol:     p.Protocol,
			APIKey:       p.APIKey,
			ExtraHeaders: mergeHeaders(p.ExtraHeaders),
			TargetModel:  mp.TargetModelName,
			Priority:     mp.Priority,
			Weight:       mp.Weight,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].ProviderID < candidates[j].ProviderID
	})

	return candidates
}

func ruleSetOf(mapping *models.ModelMapping) *models.RuleSet {
	if mapping == nil {
		return nil
	}
	return mapping.MatchingRules
}

func providerRuleSetOf(mp *models.ModelMappingProvider) *models.RuleSet {
	if mp == nil {
		return nil
	}
	return mp.ProviderRules
}

func mergeHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
