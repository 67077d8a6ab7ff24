package provider

import (
	"strings"

	"github.com/user/llm-proxy-go/internal/apierr"
	"github.com/user/llm-proxy-go/internal/models"
)

// ProtocolConfig names a frontend alias (what a Provider's config is set to)
// and the wire implementation it forwards as, plus the default base URL and
// a display label for admin surfaces.
type ProtocolConfig struct {
	Frontend       string
	Implementation models.Protocol
	BaseURL        string
	Label          string
}

// frontendProtocolConfigs lists every configurable provider alias, including
// OpenAI-compatible vendors (zhipu, aliyun, moonshot) that speak the OpenAI
// wire protocol under a different default base URL.
var frontendProtocolConfigs = map[string]ProtocolConfig{
	"openai": {
		Frontend: "openai", Implementation: models.ProtocolOpenAI,
		BaseURL: "https://api.openai.com/v1", Label: "OpenAI",
	},
	"openai_responses": {
		Frontend: "openai_responses", Implementation: models.ProtocolOpenAIResponses,
		BaseURL: "https://api.openai.com/v1", Label: "OpenAI Responses",
	},
	"anthropic": {
		Frontend: "anthropic", Implementation: models.ProtocolAnthropic,
		BaseURL: "https://api.anthropic.com/v1", Label: "Anthropic",
	},
	"gemini": {
		Frontend: "gemini", Implementation: models.ProtocolGemini,
		BaseURL: "https://generativelanguage.googleapis.com", Label: "Google Gemini",
	},
	"zhipu": {
		Frontend: "zhipu", Implementation: models.ProtocolOpenAI,
		BaseURL: "https://open.bigmodel.cn/api/paas/v4", Label: "Zhipu (OpenAI)",
	},
	"aliyun": {
		Frontend: "aliyun", Implementation: models.ProtocolOpenAI,
		BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", Label: "Aliyun (OpenAI)",
	},
	"moonshot": {
		Frontend: "moonshot", Implementation: models.ProtocolOpenAI,
		BaseURL: "https://api.moonshot.cn/v1", Label: "Moonshot (OpenAI)",
	},
}

// NormalizeFrontendProtocol lowercases/trims a protocol string, defaulting
// an empty value to "openai".
func NormalizeFrontendProtocol(protocol string) string {
	p := strings.ToLower(strings.TrimSpace(protocol))
	if p == "" {
		return "openai"
	}
	return p
}

// GetFrontendProtocolConfig resolves a configured protocol alias. Returns an
// apierr.ServiceError for unknown aliases.
func GetFrontendProtocolConfig(protocol string) (ProtocolConfig, error) {
	normalized := NormalizeFrontendProtocol(protocol)
	cfg, ok := frontendProtocolConfigs[normalized]
	if !ok {
		return ProtocolConfig{}, apierr.ServiceError(
			"Unsupported protocol '"+protocol+"'", "unsupported_protocol")
	}
	return cfg, nil
}

// ResolveImplementationProtocol maps a frontend alias straight to the wire
// protocol a ProviderClient should speak.
func ResolveImplementationProtocol(protocol string) (models.Protocol, error) {
	cfg, err := GetFrontendProtocolConfig(protocol)
	if err != nil {
		return "", err
	}
	return cfg.Implementation, nil
}

// ListFrontendProtocolConfigs returns every known alias's config, sorted in
// the table's iteration order; exposed for an admin config surface to list
// available options.
func ListFrontendProtocolConfigs() []ProtocolConfig {
	order := []string{"openai", "openai_responses", "anthropic", "gemini", "zhipu", "aliyun", "moonshot"}
	out := make([]ProtocolConfig, 0, len(order))
	for _, key := range order {
		out = append(out, frontendProtocolConfigs[key])
	}
	return out
}
