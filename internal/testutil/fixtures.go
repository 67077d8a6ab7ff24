package testutil

import (
	"time"

	"github.com/user/llm-proxy-go/internal/models"
)

// SampleProvider returns an active Anthropic-speaking provider.
func SampleProvider() *models.Provider {
	now := time.Now().UTC()
	return &models.Provider{
		ID:        1,
		Name:      "anthropic-primary",
		BaseURL:   "https://api.anthropic.com",
		Protocol:  models.ProtocolAnthropic,
		APIType:   models.APITypeChat,
		APIKey:    "sk-ant-test-key-1",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SampleProviderDisabled returns an inactive provider.
func SampleProviderDisabled() *models.Provider {
	now := time.Now().UTC()
	return &models.Provider{
		ID:        2,
		Name:      "disabled-provider",
		BaseURL:   "https://disabled.example.com",
		Protocol:  models.ProtocolOpenAI,
		APIType:   models.APITypeChat,
		APIKey:    "sk-disabled",
		IsActive:  false,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SampleModelMapping returns a sample requested-model mapping.
func SampleModelMapping() *models.ModelMapping {
	now := time.Now().UTC()
	return &models.ModelMapping{
		RequestedModel: "claude-sonnet-4",
		Strategy:       "round_robin",
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// SampleModelMappingProvider returns a sample candidate slot linking
// SampleModelMapping to providerID.
func SampleModelMappingProvider(providerID int64) *models.ModelMappingProvider {
	now := time.Now().UTC()
	return &models.ModelMappingProvider{
		ID:              1,
		RequestedModel:  "claude-sonnet-4",
		ProviderID:      providerID,
		TargetModelName: "claude-sonnet-4-20250514",
		Priority:        10,
		Weight:          1,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// SampleAPIKey returns an active API key.
func SampleAPIKey() *models.APIKey {
	now := time.Now().UTC()
	return &models.APIKey{
		ID:        1,
		KeyName:   "test key",
		KeyHash:   "hash_test_key_1",
		KeyPrefix: "lgw-test",
		IsActive:  true,
		CreatedAt: now,
	}
}

// SampleAPIKeyRevoked returns a deactivated API key.
func SampleAPIKeyRevoked() *models.APIKey {
	now := time.Now().UTC()
	return &models.APIKey{
		ID:        2,
		KeyName:   "revoked key",
		KeyHash:   "hash_revoked_key",
		KeyPrefix: "lgw-rev",
		IsActive:  false,
		CreatedAt: now,
	}
}

// SampleRequestLogEntry returns a sample request log entry for insertion.
func SampleRequestLogEntry(traceID string) *models.RequestLogEntry {
	return &models.RequestLogEntry{
		TraceID:              traceID,
		RequestTime:          time.Now().UTC(),
		RequestedModel:       "claude-sonnet-4",
		TargetModel:          "claude-sonnet-4-20250514",
		ProviderName:         "anthropic-primary",
		RetryCount:           0,
		MatchedProviderCount: 1,
		TotalTimeMS:          150,
		InputTokens:          100,
		OutputTokens:         50,
		ResponseStatus:       200,
		IsStream:             false,
		RequestProtocol:      string(models.ProtocolAnthropic),
		SupplierProtocol:     string(models.ProtocolAnthropic),
	}
}

// SimpleRequest returns a simple chat request body.
func SimpleRequest() map[string]any {
	return map[string]any{
		"model":      "claude-sonnet-4",
		"max_tokens": 1024,
		"messages": []map[string]any{
			{
				"role":    "user",
				"content": "read file config.yaml",
			},
		},
	}
}

// StreamRequest returns a streaming chat request body.
func StreamRequest() map[string]any {
	return map[string]any{
		"model":      "claude-sonnet-4",
		"max_tokens": 1024,
		"stream":     true,
		"messages": []map[string]any{
			{
				"role":    "user",
				"content": "Write a short poem about coding.",
			},
		},
	}
}
