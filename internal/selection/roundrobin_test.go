package selection

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/user/llm-proxy-go/internal/models"
)

func candidates(ids ...int64) []models.CandidateProvider {
	out := make([]models.CandidateProvider, len(ids))
	for i, id := range ids {
		out[i] = models.CandidateProvider{ProviderID: id}
	}
	return out
}

func TestRoundRobin_SelectCycles(t *testing.T) {
	rr := NewRoundRobin()
	cs := candidates(1, 2, 3)

	var got []int64
	for i := 0; i < 4; i++ {
		c, _, ok := rr.Select(cs, "gpt-4")
		assert.True(t, ok)
		got = append(got, c.ProviderID)
	}
	assert.Equal(t, []int64{1, 2, 3, 1}, got)
}

func TestRoundRobin_IndependentCountersPerModel(t *testing.T) {
	rr := NewRoundRobin()
	cs := candidates(1, 2)

	a, _, _ := rr.Select(cs, "gpt-4")
	b, _, _ := rr.Select(cs, "claude-3")
	assert.Equal(t, int64(1), a.ProviderID)
	assert.Equal(t, int64(1), b.ProviderID)
}

func TestRoundRobin_SelectEmpty(t *testing.T) {
	rr := NewRoundRobin()
	_, _, ok := rr.Select(nil, "gpt-4")
	assert.False(t, ok)
}

func TestRoundRobin_GetNext(t *testing.T) {
	rr := NewRoundRobin()
	cs := candidates(1, 2, 3)

	next, nextIndex, ok := rr.GetNext(cs, 0, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(2), next.ProviderID)
	assert.Equal(t, 1, nextIndex)

	next, nextIndex, ok = rr.GetNext(cs, 2, 2)
	assert.True(t, ok)
	assert.Equal(t, int64(1), next.ProviderID)
	assert.Equal(t, 0, nextIndex)
}

func TestRoundRobin_GetNextSingleCandidate(t *testing.T) {
	rr := NewRoundRobin()
	cs := candidates(1)
	_, _, ok := rr.GetNext(cs, 0, 1)
	assert.False(t, ok)
}

func TestRoundRobin_GetNextStopsOnceEveryCandidateTried(t *testing.T) {
	rr := NewRoundRobin()
	cs := candidates(1, 2, 3)

	// triedCount == len(candidates): every candidate already had a turn.
	_, _, ok := rr.GetNext(cs, 2, 3)
	assert.False(t, ok)
}

func TestRoundRobin_GetNextMatchesByPositionNotProviderID(t *testing.T) {
	rr := NewRoundRobin()
	// Two entries share a provider_id, as spec allows for duplicate
	// (requested_model, provider_id) pairs with distinct target models.
	cs := []models.CandidateProvider{
		{ProviderID: 1, TargetModel: "a"},
		{ProviderID: 1, TargetModel: "b"},
		{ProviderID: 2, TargetModel: "c"},
	}

	next, nextIndex, ok := rr.GetNext(cs, 0, 1)
	assert.True(t, ok)
	assert.Equal(t, 1, nextIndex)
	assert.Equal(t, "b", next.TargetModel)

	next, nextIndex, ok = rr.GetNext(cs, 1, 2)
	assert.True(t, ok)
	assert.Equal(t, 2, nextIndex)
	assert.Equal(t, "c", next.TargetModel)
}

func TestRoundRobin_ConcurrentSelectDistributesEvenly(t *testing.T) {
	rr := NewRoundRobin()
	cs := candidates(1, 2, 3, 4)

	var wg sync.WaitGroup
	counts := make([]int, len(cs))
	var mu sync.Mutex

	for i := 0; i < 400; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, _, ok := rr.Select(cs, "gpt-4")
			if !ok {
				return
			}
			mu.Lock()
			counts[c.ProviderID-1]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 400, total)
}
