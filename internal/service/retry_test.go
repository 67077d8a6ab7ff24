package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/user/llm-proxy-go/internal/models"
	"github.com/user/llm-proxy-go/internal/provider"
	"github.com/user/llm-proxy-go/internal/selection"
)

func twoCandidates() []models.CandidateProvider {
	return []models.CandidateProvider{
		{ProviderID: 1, ProviderName: "Provider1", Priority: 0},
		{ProviderID: 2, ProviderName: "Provider2", Priority: 1},
	}
}

func TestRetryHandler_SuccessOnFirstTry(t *testing.T) {
	h := NewRetryHandler(selection.NewRoundRobin(), 3, 0)
	result := h.Execute(context.Background(), twoCandidates(), "test", func(ctx context.Context, c models.CandidateProvider) provider.Response {
		return provider.Response{StatusCode: 200}
	})
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.RetryCount)
}

func TestRetryHandler_RetriesOn500ThenSucceeds(t *testing.T) {
	h := NewRetryHandler(selection.NewRoundRobin(), 3, 0)
	calls := 0
	result := h.Execute(context.Background(), twoCandidates(), "test", func(ctx context.Context, c models.CandidateProvider) provider.Response {
		calls++
		if calls < 3 {
			return provider.Response{StatusCode: 500}
		}
		return provider.Response{StatusCode: 200}
	})
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.RetryCount)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(1), result.FinalProvider.ProviderID)
}

func TestRetryHandler_FailsOverOn4xxImmediately(t *testing.T) {
	h := NewRetryHandler(selection.NewRoundRobin(), 3, 0)
	var seen []int64
	result := h.Execute(context.Background(), twoCandidates(), "test", func(ctx context.Context, c models.CandidateProvider) provider.Response {
		seen = append(seen, c.ProviderID)
		if c.ProviderID == 1 {
			return provider.Response{StatusCode: 400}
		}
		return provider.Response{StatusCode: 200}
	})
	assert.True(t, result.Success)
	assert.Equal(t, []int64{1, 2}, seen)
	assert.Equal(t, int64(2), result.FinalProvider.ProviderID)
}

func TestRetryHandler_MaxRetriesThenFailover(t *testing.T) {
	h := NewRetryHandler(selection.NewRoundRobin(), 3, 0)
	var seen []int64
	result := h.Execute(context.Background(), twoCandidates(), "test", func(ctx context.Context, c models.CandidateProvider) provider.Response {
		seen = append(seen, c.ProviderID)
		if c.ProviderID == 1 {
			return provider.Response{StatusCode: 500}
		}
		return provider.Response{StatusCode: 200}
	})
	assert.True(t, result.Success)
	// 1 initial + 3 retries on provider1 (max_retries=3), then switch
	assert.Equal(t, []int64{1, 1, 1, 1, 2}, seen)
}

func TestRetryHandler_AllProvidersFail_TotalAttemptsMatchFormula(t *testing.T) {
	h := NewRetryHandler(selection.NewRoundRobin(), 3, 0)
	calls := 0
	result := h.Execute(context.Background(), twoCandidates(), "test", func(ctx context.Context, c models.CandidateProvider) provider.Response {
		calls++
		return provider.Response{StatusCode: 500}
	})
	assert.False(t, result.Success)
	assert.Equal(t, 503, result.Response.StatusCode)
	// len(candidates) * (max_retries + 1) = 2 * 4 = 8
	assert.Equal(t, 8, calls)
	assert.Equal(t, 7, result.RetryCount)
}

func chunkChannel(chunks ...provider.StreamChunk) <-chan provider.StreamChunk {
	ch := make(chan provider.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestRetryHandler_ExecuteStream_SuccessOnFirstTry(t *testing.T) {
	h := NewRetryHandler(selection.NewRoundRobin(), 3, 0)
	result := h.ExecuteStream(context.Background(), twoCandidates(), "test", func(ctx context.Context, c models.CandidateProvider) (<-chan provider.StreamChunk, error) {
		return chunkChannel(
			provider.StreamChunk{Data: []byte("chunk1"), Response: provider.Response{StatusCode: 200}},
			provider.StreamChunk{Done: true, Response: provider.Response{StatusCode: 200}},
		), nil
	})
	assert.True(t, result.Success)
	assert.Equal(t, []byte("chunk1"), result.FirstChunk.Data)
	assert.Equal(t, 0, result.RetryCount)

	remaining := <-result.Remaining
	assert.True(t, remaining.Done)
}

func TestRetryHandler_ExecuteStream_FailsOverOnBadStatus(t *testing.T) {
	h := NewRetryHandler(selection.NewRoundRobin(), 3, 0)
	var seen []int64
	result := h.ExecuteStream(context.Background(), twoCandidates(), "test", func(ctx context.Context, c models.CandidateProvider) (<-chan provider.StreamChunk, error) {
		seen = append(seen, c.ProviderID)
		if c.ProviderID == 1 {
			return chunkChannel(provider.StreamChunk{Done: true, Response: provider.Response{StatusCode: 500}}), nil
		}
		return chunkChannel(provider.StreamChunk{Data: []byte("ok"), Response: provider.Response{StatusCode: 200}}), nil
	})
	assert.True(t, result.Success)
	assert.Equal(t, int64(2), result.FinalProvider.ProviderID)
}

func TestRetryHandler_EmptyCandidates(t *testing.T) {
	h := NewRetryHandler(selection.NewRoundRobin(), 3, 0)
	result := h.Execute(context.Background(), nil, "test", func(ctx context.Context, c models.CandidateProvider) provider.Response {
		return provider.Response{StatusCode: 200}
	})
	assert.False(t, result.Success)
	assert.Equal(t, 503, result.Response.StatusCode)
}
