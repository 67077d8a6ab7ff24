package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/user/llm-proxy-go/internal/models"
	"github.com/user/llm-proxy-go/internal/provider"
	"github.com/user/llm-proxy-go/internal/selection"
)

// RetryResult is the outcome of running RetryHandler.Execute to completion:
// either a terminal success/failure response plus the candidate and total
// attempt accounting needed for the request log row.
type RetryResult struct {
	Response      provider.Response
	Success       bool
	RetryCount    int
	FinalProvider models.CandidateProvider
	TotalAttempts int
}

// ForwardFunc makes one upstream attempt against a candidate.
type ForwardFunc func(ctx context.Context, candidate models.CandidateProvider) provider.Response

// RetryHandler implements spec.md §4.11's state machine: retry on 5xx/
// transport error up to max_retries on the same candidate, fail over
// immediately (no retry) on 4xx, and synthesize a 503 once candidates are
// exhausted.
type RetryHandler struct {
	strategy     *selection.RoundRobin
	maxRetries   int
	retryDelayMS int
}

func NewRetryHandler(strategy *selection.RoundRobin, maxRetries, retryDelayMS int) *RetryHandler {
	return &RetryHandler{strategy: strategy, maxRetries: maxRetries, retryDelayMS: retryDelayMS}
}

// Execute runs the retry/failover loop for one ingress request.
func (h *RetryHandler) Execute(
	ctx context.Context,
	candidates []models.CandidateProvider,
	requestedModel string,
	forward ForwardFunc,
) RetryResult {
	if len(candidates) == 0 {
		return RetryResult{Response: exhaustedResponse(nil), Success: false}
	}

	current, currentIndex, ok := h.strategy.Select(candidates, requestedModel)
	if !ok {
		return RetryResult{Response: exhaustedResponse(nil), Success: false}
	}

	attemptsOnCurrent := 0
	totalAttempts := 0
	triedCount := 1
	triedNames := []string{current.ProviderName}

	for {
		resp := forward(ctx, current)
		totalAttempts++

		if resp.IsSuccess() {
			return RetryResult{
				Response:      resp,
				Success:       true,
				RetryCount:    totalAttempts - 1,
				FinalProvider: current,
				TotalAttempts: totalAttempts,
			}
		}

		retryable := resp.IsServerError() || resp.Err != nil

		if retryable && attemptsOnCurrent < h.maxRetries {
			h.sleep(ctx)
			attemptsOnCurrent++
			continue
		}

		next, nextIndex, ok := h.strategy.GetNext(candidates, currentIndex, triedCount)
		if !ok {
			return RetryResult{
				Response:      exhaustedResponse(triedNames),
				Success:       false,
				RetryCount:    totalAttempts - 1,
				FinalProvider: current,
				TotalAttempts: totalAttempts,
			}
		}
		current = next
		currentIndex = nextIndex
		attemptsOnCurrent = 0
		triedCount++
		triedNames = append(triedNames, current.ProviderName)
	}
}

// StreamForwardFunc makes one streaming upstream attempt, matching
// provider.Client.ForwardStream's signature exactly so a candidate's
// provider.Client can be passed directly.
type StreamForwardFunc func(ctx context.Context, candidate models.CandidateProvider) (<-chan provider.StreamChunk, error)

// StreamRetryResult is the outcome of ExecuteStream: on success, FirstChunk
// plus Remaining together form the complete stream (FirstChunk must be
// relayed before draining Remaining). On failure, FailureBody holds the
// complete captured body of the final failed attempt, when one was read.
type StreamRetryResult struct {
	Success       bool
	FirstChunk    provider.StreamChunk
	Remaining     <-chan provider.StreamChunk
	RetryCount    int
	FinalProvider models.CandidateProvider
	FailureBody   []byte
}

// ExecuteStream mirrors Execute's retry/failover state machine, but the
// retry decision is made from the first status-bearing chunk of the
// upstream stream rather than a fully-buffered Response — matching spec.md
// §4.12's "retries happen only during the connection phase" guarantee: no
// stream bytes reach the caller until a candidate's status is known good.
func (h *RetryHandler) ExecuteStream(
	ctx context.Context,
	candidates []models.CandidateProvider,
	requestedModel string,
	forward StreamForwardFunc,
) StreamRetryResult {
	if len(candidates) == 0 {
		return StreamRetryResult{}
	}

	current, currentIndex, ok := h.strategy.Select(candidates, requestedModel)
	if !ok {
		return StreamRetryResult{}
	}

	attemptsOnCurrent := 0
	totalAttempts := 0
	triedCount := 1

	for {
		resp, first, rest, err := h.attemptStream(ctx, current, forward)
		totalAttempts++

		if err == nil && resp.IsSuccess() {
			return StreamRetryResult{
				Success:       true,
				FirstChunk:    first,
				Remaining:     rest,
				RetryCount:    totalAttempts - 1,
				FinalProvider: current,
			}
		}

		retryable := err != nil || resp.IsServerError() || resp.Err != nil

		if retryable && attemptsOnCurrent < h.maxRetries {
			h.sleep(ctx)
			attemptsOnCurrent++
			continue
		}

		next, nextIndex, ok := h.strategy.GetNext(candidates, currentIndex, triedCount)
		if !ok {
			return StreamRetryResult{
				Success:       false,
				FirstChunk:    first,
				RetryCount:    totalAttempts - 1,
				FinalProvider: current,
				FailureBody:   drainBody(first, rest),
			}
		}
		current = next
		currentIndex = nextIndex
		attemptsOnCurrent = 0
		triedCount++
	}
}

// drainBody reads any remaining chunks of a failed stream attempt to
// assemble its complete response body, so the caller can surface the
// upstream's actual error payload instead of a synthesized one.
func drainBody(first provider.StreamChunk, rest <-chan provider.StreamChunk) []byte {
	body := append([]byte(nil), first.Data...)
	if rest == nil {
		return body
	}
	for chunk := range rest {
		body = append(body, chunk.Data...)
		if chunk.Done {
			break
		}
	}
	return body
}

// attemptStream opens one streaming attempt and reads its first chunk so
// the caller can make the retry decision before any bytes are relayed.
func (h *RetryHandler) attemptStream(
	ctx context.Context,
	candidate models.CandidateProvider,
	forward StreamForwardFunc,
) (provider.Response, provider.StreamChunk, <-chan provider.StreamChunk, error) {
	ch, err := forward(ctx, candidate)
	if err != nil {
		return provider.Response{StatusCode: 502, Err: err}, provider.StreamChunk{}, nil, err
	}

	first, ok := <-ch
	if !ok {
		err := fmt.Errorf("upstream stream closed with no data")
		return provider.Response{StatusCode: 502, Err: err}, provider.StreamChunk{}, nil, nil
	}
	return first.Response, first, ch, nil
}

func (h *RetryHandler) sleep(ctx context.Context) {
	if h.retryDelayMS <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(h.retryDelayMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func exhaustedResponse(triedNames []string) provider.Response {
	msg := "all candidate providers failed"
	if len(triedNames) > 0 {
		msg = fmt.Sprintf("all candidate providers failed: %s", strings.Join(triedNames, ", "))
	}
	return provider.Response{StatusCode: 503, Err: fmt.Errorf("%s", msg)}
}
