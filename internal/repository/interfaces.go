// Package repository defines data access interfaces and their SQLite
// implementations for the gateway's persisted entities.
package repository

import (
	"context"

	"github.com/user/llm-proxy-go/internal/models"
)

// ProviderRepository provides access to configured upstream providers.
type ProviderRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Provider, error)
	FindAllActive(ctx context.Context) ([]*models.Provider, error)
	FindAll(ctx context.Context) ([]*models.Provider, error)
	Insert(ctx context.Context, p *models.Provider) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
	Delete(ctx context.Context, id int64) error
}

// ModelMappingRepository provides access to requested-model → candidate
// mappings and their matching rulesets.
type ModelMappingRepository interface {
	FindByRequestedModel(ctx context.Context, requestedModel string) (*models.ModelMapping, error)
	FindAll(ctx context.Context) ([]*models.ModelMapping, error)
	Upsert(ctx context.Context, m *models.ModelMapping) error
	Delete(ctx context.Context, requestedModel string) error

	ListProvidersFor(ctx context.Context, requestedModel string) ([]*models.ModelMappingProvider, error)
	AddProvider(ctx context.Context, mp *models.ModelMappingProvider) (int64, error)
	UpdateProvider(ctx context.Context, id int64, updates map[string]any) error
	RemoveProvider(ctx context.Context, id int64) error
}

// APIKeyRepository provides access to ingress-authenticating API keys.
type APIKeyRepository interface {
	FindByKeyHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	FindByID(ctx context.Context, id int64) (*models.APIKey, error)
	FindAll(ctx context.Context) ([]*models.APIKey, error)
	Insert(ctx context.Context, key *models.APIKey) (int64, error)
	UpdateLastUsed(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}

// LogStatistics summarizes a RequestLog slice for the (out-of-scope) admin
// dashboard surface; the aggregation SQL is still exercised by tests.
type LogStatistics struct {
	TotalRequests  int64
	SuccessCount   int64
	ErrorCount     int64
	TotalInputToks int64
	TotalOutputTok int64
	AvgTotalTimeMS float64
}

// RequestLogRepository provides access to persisted request logs.
type RequestLogRepository interface {
	Insert(ctx context.Context, entry *models.RequestLogEntry) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.RequestLog, error)
	List(ctx context.Context, query models.RequestLogQuery) ([]*models.RequestLog, int64, error)
	GetStatistics(ctx context.Context, query models.RequestLogQuery) (*LogStatistics, error)
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// KVStoreRepository is a generic key/value store used for process-wide
// state that should survive a restart — currently the optional persisted
// round-robin counters (spec.md §9 Open Question: counter persistence).
type KVStoreRepository interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]string, error)
}
