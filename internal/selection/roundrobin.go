// Package selection chooses a candidate provider from a rule-matched,
// already-ranked list, and hands out the next candidate on failover.
package selection

import (
	"sync"

	"github.com/user/llm-proxy-go/internal/models"
)

// RoundRobin selects across candidates for a requested model in rotation,
// maintaining one counter per model so traffic for different models is
// independently distributed.
type RoundRobin struct {
	mu       sync.Mutex
	counters map[string]uint64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{counters: make(map[string]uint64)}
}

// Select picks the next candidate for requestedModel, advancing that
// model's counter, and returns its position in candidates alongside it so
// the caller can drive GetNext by position rather than by identity. Returns
// false if candidates is empty.
func (r *RoundRobin) Select(candidates []models.CandidateProvider, requestedModel string) (models.CandidateProvider, int, bool) {
	if len(candidates) == 0 {
		return models.CandidateProvider{}, -1, false
	}

	r.mu.Lock()
	counter := r.counters[requestedModel]
	r.counters[requestedModel] = counter + 1
	r.mu.Unlock()

	index := int(counter % uint64(len(candidates)))
	return candidates[index], index, true
}

// GetNext returns the candidate immediately after currentIndex in the
// list, wrapping around, along with its position. Used by the retry
// controller on failover once currentIndex's retry budget is spent.
// triedCount is the number of distinct candidates already attempted
// (including current); once it reaches len(candidates), every candidate has
// had a turn and ok is false, so failover stops instead of cycling back
// through providers it already gave up on. Candidates are matched by list
// position, not provider id, since spec allows duplicate (requested_model,
// provider_id) pairs in the candidate list.
func (r *RoundRobin) GetNext(candidates []models.CandidateProvider, currentIndex, triedCount int) (models.CandidateProvider, int, bool) {
	if len(candidates) <= 1 || triedCount >= len(candidates) {
		return models.CandidateProvider{}, -1, false
	}

	nextIndex := (currentIndex + 1) % len(candidates)
	return candidates[nextIndex], nextIndex, true
}

// Reset clears the counter for requestedModel, or all counters if empty.
func (r *RoundRobin) Reset(requestedModel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if requestedModel == "" {
		r.counters = make(map[string]uint64)
		return
	}
	delete(r.counters, requestedModel)
}
