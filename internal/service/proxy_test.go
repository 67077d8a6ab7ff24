package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/llm-proxy-go/internal/models"
	"github.com/user/llm-proxy-go/internal/provider"
	"github.com/user/llm-proxy-go/internal/repository"
	"github.com/user/llm-proxy-go/internal/rules"
	"github.com/user/llm-proxy-go/internal/selection"
	"go.uber.org/zap"
)

// fakeMappingRepo and fakeProviderRepo satisfy just enough of their
// interfaces for ProxyService's read path; the admin write methods panic if
// ever called since nothing under test exercises them.

type fakeMappingRepo struct {
	mapping   *models.ModelMapping
	providers []*models.ModelMappingProvider
}

func (f *fakeMappingRepo) FindByRequestedModel(ctx context.Context, requestedModel string) (*models.ModelMapping, error) {
	if f.mapping != nil && f.mapping.RequestedModel == requestedModel {
		return f.mapping, nil
	}
	return nil, nil
}
func (f *fakeMappingRepo) FindAll(ctx context.Context) ([]*models.ModelMapping, error) { panic("unused") }
func (f *fakeMappingRepo) Upsert(ctx context.Context, m *models.ModelMapping) error     { panic("unused") }
func (f *fakeMappingRepo) Delete(ctx context.Context, requestedModel string) error      { panic("unused") }
func (f *fakeMappingRepo) ListProvidersFor(ctx context.Context, requestedModel string) ([]*models.ModelMappingProvider, error) {
	return f.providers, nil
}
func (f *fakeMappingRepo) AddProvider(ctx context.Context, mp *models.ModelMappingProvider) (int64, error) {
	panic("unused")
}
func (f *fakeMappingRepo) UpdateProvider(ctx context.Context, id int64, updates map[string]any) error {
	panic("unused")
}
func (f *fakeMappingRepo) RemoveProvider(ctx context.Context, id int64) error { panic("unused") }

type fakeProviderRepo struct {
	byID map[int64]*models.Provider
}

func (f *fakeProviderRepo) FindByID(ctx context.Context, id int64) (*models.Provider, error) {
	return f.byID[id], nil
}
func (f *fakeProviderRepo) FindAllActive(ctx context.Context) ([]*models.Provider, error) { panic("unused") }
func (f *fakeProviderRepo) FindAll(ctx context.Context) ([]*models.Provider, error)        { panic("unused") }
func (f *fakeProviderRepo) Insert(ctx context.Context, p *models.Provider) (int64, error)  { panic("unused") }
func (f *fakeProviderRepo) Update(ctx context.Context, id int64, updates map[string]any) error {
	panic("unused")
}
func (f *fakeProviderRepo) Delete(ctx context.Context, id int64) error { panic("unused") }

type fakeLogRepo struct {
	mu      sync.Mutex
	entries []*models.RequestLogEntry
}

func (f *fakeLogRepo) Insert(ctx context.Context, entry *models.RequestLogEntry) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return int64(len(f.entries)), nil
}
func (f *fakeLogRepo) GetByID(ctx context.Context, id int64) (*models.RequestLog, error) { panic("unused") }
func (f *fakeLogRepo) List(ctx context.Context, query models.RequestLogQuery) ([]*models.RequestLog, int64, error) {
	panic("unused")
}
func (f *fakeLogRepo) GetStatistics(ctx context.Context, query models.RequestLogQuery) (*repository.LogStatistics, error) {
	panic("unused")
}
func (f *fakeLogRepo) DeleteOlderThan(ctx context.Context, days int) (int64, error) { panic("unused") }

func (f *fakeLogRepo) last() *models.RequestLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return nil
	}
	return f.entries[len(f.entries)-1]
}

func newTestProxyService(t *testing.T, mappingRepo *fakeMappingRepo, providerRepo *fakeProviderRepo, logRepo *fakeLogRepo) *ProxyService {
	t.Helper()
	return NewProxyService(
		mappingRepo,
		providerRepo,
		logRepo,
		rules.NewEngine(),
		NewRetryHandler(selection.NewRoundRobin(), 1, 0),
		provider.NewFactory(5*time.Second),
		zap.NewNop(),
	)
}

func singleCandidateFixtures(upstreamURL string) (*fakeMappingRepo, *fakeProviderRepo) {
	mappingRepo := &fakeMappingRepo{
		mapping: &models.ModelMapping{RequestedModel: "gpt-4", IsActive: true},
		providers: []*models.ModelMappingProvider{
			{ID: 1, RequestedModel: "gpt-4", ProviderID: 1, TargetModelName: "gpt-4-turbo", IsActive: true},
		},
	}
	providerRepo := &fakeProviderRepo{byID: map[int64]*models.Provider{
		1: {ID: 1, Name: "primary", BaseURL: upstreamURL, Protocol: models.ProtocolOpenAI, APIType: models.APITypeChat, APIKey: "sk-test", IsActive: true},
	}}
	return mappingRepo, providerRepo
}

func TestProxyService_ProcessRequest_Success(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4-turbo", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-1",
			"model": "gpt-4-turbo",
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12},
		})
	}))
	defer upstream.Close()

	mappingRepo, providerRepo := singleCandidateFixtures(upstream.URL)
	logRepo := &fakeLogRepo{}
	svc := newTestProxyService(t, mappingRepo, providerRepo, logRepo)

	resp, err := svc.ProcessRequest(context.Background(), ProxyRequest{
		RequestProtocol: models.ProtocolOpenAI,
		Path:            "/v1/chat/completions",
		Method:          http.MethodPost,
		Headers:         http.Header{"Authorization": []string{"Bearer ingress-key"}},
		Body: map[string]any{
			"model":    "gpt-4",
			"messages": []any{map[string]any{"role": "user", "content": "hi"}},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "primary", resp.ProviderName)
	assert.Equal(t, "gpt-4-turbo", resp.TargetModel)
	assert.NotEmpty(t, resp.TraceID)

	entry := logRepo.last()
	require.NotNil(t, entry)
	assert.Equal(t, 200, entry.ResponseStatus)
	assert.Equal(t, 7, entry.OutputTokens)
	assert.Equal(t, 1, entry.MatchedProviderCount)
	assert.Equal(t, "primary", entry.ProviderName)
}

func TestProxyService_ProcessRequest_MissingModel(t *testing.T) {
	mappingRepo, providerRepo := singleCandidateFixtures("http://unused.invalid")
	logRepo := &fakeLogRepo{}
	svc := newTestProxyService(t, mappingRepo, providerRepo, logRepo)

	_, err := svc.ProcessRequest(context.Background(), ProxyRequest{
		RequestProtocol: models.ProtocolOpenAI,
		Headers:         http.Header{},
		Body:            map[string]any{},
	})

	require.Error(t, err)
	entry := logRepo.last()
	require.NotNil(t, entry)
	assert.Equal(t, 422, entry.ResponseStatus)
}

func TestProxyService_ProcessRequest_ModelNotConfigured(t *testing.T) {
	mappingRepo := &fakeMappingRepo{}
	providerRepo := &fakeProviderRepo{byID: map[int64]*models.Provider{}}
	logRepo := &fakeLogRepo{}
	svc := newTestProxyService(t, mappingRepo, providerRepo, logRepo)

	_, err := svc.ProcessRequest(context.Background(), ProxyRequest{
		RequestProtocol: models.ProtocolOpenAI,
		Body:            map[string]any{"model": "unknown-model"},
	})

	require.Error(t, err)
	entry := logRepo.last()
	require.NotNil(t, entry)
	assert.Equal(t, 404, entry.ResponseStatus)
}

func TestProxyService_ProcessRequest_NoCandidates(t *testing.T) {
	mappingRepo := &fakeMappingRepo{
		mapping:   &models.ModelMapping{RequestedModel: "gpt-4", IsActive: true},
		providers: nil,
	}
	providerRepo := &fakeProviderRepo{byID: map[int64]*models.Provider{}}
	logRepo := &fakeLogRepo{}
	svc := newTestProxyService(t, mappingRepo, providerRepo, logRepo)

	_, err := svc.ProcessRequest(context.Background(), ProxyRequest{
		RequestProtocol: models.ProtocolOpenAI,
		Body:            map[string]any{"model": "gpt-4"},
	})

	require.Error(t, err)
	entry := logRepo.last()
	require.NotNil(t, entry)
	assert.Equal(t, 0, entry.MatchedProviderCount)
	assert.Equal(t, 503, entry.ResponseStatus)
}

func TestProxyService_ProcessRequest_FailsOverOnUpstreamError(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "chatcmpl-2"})
	}))
	defer healthy.Close()

	mappingRepo := &fakeMappingRepo{
		mapping: &models.ModelMapping{RequestedModel: "gpt-4", IsActive: true},
		providers: []*models.ModelMappingProvider{
			{ID: 1, RequestedModel: "gpt-4", ProviderID: 1, TargetModelName: "m1", IsActive: true, Priority: 0},
			{ID: 2, RequestedModel: "gpt-4", ProviderID: 2, TargetModelName: "m2", IsActive: true, Priority: 1},
		},
	}
	providerRepo := &fakeProviderRepo{byID: map[int64]*models.Provider{
		1: {ID: 1, Name: "flaky", BaseURL: failing.URL, Protocol: models.ProtocolOpenAI, APIType: models.APITypeChat, IsActive: true},
		2: {ID: 2, Name: "healthy", BaseURL: healthy.URL, Protocol: models.ProtocolOpenAI, APIType: models.APITypeChat, IsActive: true},
	}}
	logRepo := &fakeLogRepo{}
	svc := newTestProxyService(t, mappingRepo, providerRepo, logRepo)

	resp, err := svc.ProcessRequest(context.Background(), ProxyRequest{
		RequestProtocol: models.ProtocolOpenAI,
		Path:            "/v1/chat/completions",
		Headers:         http.Header{},
		Body:            map[string]any{"model": "gpt-4"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", resp.ProviderName)

	entry := logRepo.last()
	require.NotNil(t, entry)
	assert.Equal(t, "healthy", entry.ProviderName)
}

func TestProxyService_ProcessRequestStream_Success(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	mappingRepo, providerRepo := singleCandidateFixtures(upstream.URL)
	logRepo := &fakeLogRepo{}
	svc := newTestProxyService(t, mappingRepo, providerRepo, logRepo)

	initial, stream, err := svc.ProcessRequestStream(context.Background(), ProxyRequest{
		RequestProtocol: models.ProtocolOpenAI,
		Path:            "/v1/chat/completions",
		Headers:         http.Header{},
		Body:            map[string]any{"model": "gpt-4", "stream": true},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, initial.StatusCode)
	require.NotNil(t, stream)

	var pieces [][]byte
	for chunk := range stream {
		pieces = append(pieces, chunk.Data)
	}
	assert.NotEmpty(t, pieces)

	// The log write happens in the relay goroutine, right after the channel
	// closes; give it a moment to land before asserting on it.
	require.Eventually(t, func() bool { return logRepo.last() != nil }, time.Second, 5*time.Millisecond)
	entry := logRepo.last()
	assert.True(t, entry.IsStream)
	assert.Equal(t, "primary", entry.ProviderName)
}

func TestProxyService_ProcessRequestStream_ExhaustionSurfacesUpstreamBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited upstream"}}`))
	}))
	defer upstream.Close()

	mappingRepo, providerRepo := singleCandidateFixtures(upstream.URL)
	logRepo := &fakeLogRepo{}
	svc := newTestProxyService(t, mappingRepo, providerRepo, logRepo)

	initial, stream, err := svc.ProcessRequestStream(context.Background(), ProxyRequest{
		RequestProtocol: models.ProtocolOpenAI,
		Path:            "/v1/chat/completions",
		Headers:         http.Header{},
		Body:            map[string]any{"model": "gpt-4", "stream": true},
	})

	require.NoError(t, err)
	assert.Nil(t, stream)
	assert.Equal(t, http.StatusInternalServerError, initial.StatusCode)
	assert.JSONEq(t, `{"error":{"message":"rate limited upstream"}}`, string(initial.Body))
}
