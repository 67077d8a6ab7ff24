package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/user/llm-proxy-go/internal/apierr"
	"github.com/user/llm-proxy-go/internal/models"
	"github.com/user/llm-proxy-go/internal/provider"
	"github.com/user/llm-proxy-go/internal/proxyhttp"
	"github.com/user/llm-proxy-go/internal/repository"
	"github.com/user/llm-proxy-go/internal/rules"
	"github.com/user/llm-proxy-go/internal/security"
	"github.com/user/llm-proxy-go/internal/sse"
	"github.com/user/llm-proxy-go/internal/timing"
	"github.com/user/llm-proxy-go/internal/tokencount"
	"go.uber.org/zap"
)

// logWriteTimeout bounds the detached context used to persist a request log
// row so a slow database write can never hang a stream goroutine forever.
const logWriteTimeout = 5 * time.Second

func nowUTC() time.Time { return time.Now().UTC() }

// ProxyRequest is the protocol-agnostic shape a handler builds from one
// ingress call, before ProxyService resolves candidates and forwards it.
type ProxyRequest struct {
	APIKeyID        *int64
	APIKeyName      string
	RequestProtocol models.Protocol // the dialect the ingress endpoint speaks
	Path            string          // original ingress path, forwarded unless a client rewrites it
	Method          string
	Headers         http.Header
	Body            map[string]any
}

// ProxyResponse is what ProcessRequest/ProcessRequestStream hand back to the
// handler to render to the ingress client.
type ProxyResponse struct {
	StatusCode   int
	Headers      http.Header
	Body         []byte
	TraceID      string
	TargetModel  string
	ProviderName string
}

// StreamChunk is one piece of a forwarded stream, as relayed to the handler.
type StreamChunk struct {
	Data []byte
	Done bool
	Err  error
}

// ProxyService implements spec.md §4.12: resolve candidates for a requested
// model, forward through the retry/failover controller, and log the
// outcome.
type ProxyService struct {
	mappingRepo repository.ModelMappingRepository
	providerRepo repository.ProviderRepository
	logRepo      repository.RequestLogRepository
	ruleEngine   *rules.Engine
	retryHandler *RetryHandler
	factory      *provider.Factory
	logger       *zap.Logger
}

func NewProxyService(
	mappingRepo repository.ModelMappingRepository,
	providerRepo repository.ProviderRepository,
	logRepo repository.RequestLogRepository,
	ruleEngine *rules.Engine,
	retryHandler *RetryHandler,
	factory *provider.Factory,
	logger *zap.Logger,
) *ProxyService {
	return &ProxyService{
		mappingRepo:  mappingRepo,
		providerRepo: providerRepo,
		logRepo:      logRepo,
		ruleEngine:   ruleEngine,
		retryHandler: retryHandler,
		factory:      factory,
		logger:       logger,
	}
}

// ProcessRequest implements spec.md §4.12's blocking path: resolve
// candidates, run them through the retry/failover controller, and write one
// request log row before returning.
func (s *ProxyService) ProcessRequest(ctx context.Context, req ProxyRequest) (ProxyResponse, error) {
	traceID := uuid.New().String()
	timer := timing.New()

	entry := s.newLogEntry(req, traceID)

	requestedModel := entry.RequestedModel
	if requestedModel == "" {
		return s.failAndLog(ctx, entry, timer, apierr.ValidationError(`request body is missing a "model" field`, "missing_model"))
	}

	mapping, err := s.mappingRepo.FindByRequestedModel(ctx, requestedModel)
	if err != nil {
		s.logger.Error("model mapping lookup failed", zap.String("trace_id", traceID), zap.Error(err))
		return s.failAndLog(ctx, entry, timer, apierr.Internal("failed to load model configuration", "mapping_lookup_failed"))
	}
	if mapping == nil || !mapping.IsActive {
		return s.failAndLog(ctx, entry, timer, apierr.NotFoundError(fmt.Sprintf("model %q is not configured", requestedModel), "model_not_configured"))
	}

	reqCtx, _ := s.buildRequestContext(req, requestedModel)
	entry.InputTokens = reqCtx.TokenUsage.InputTokens

	candidates, err := s.resolveCandidates(ctx, reqCtx, mapping)
	if err != nil {
		return s.failAndLog(ctx, entry, timer, apierr.Internal("failed to resolve candidate providers", "candidate_resolution_failed"))
	}
	entry.MatchedProviderCount = len(candidates)
	if len(candidates) == 0 {
		return s.failAndLog(ctx, entry, timer, apierr.ServiceError("no available providers matched this request", "no_candidates"))
	}

	forward := func(ctx context.Context, candidate models.CandidateProvider) provider.Response {
		client, err := s.factory.For(candidate.Protocol)
		if err != nil {
			return provider.Response{StatusCode: 502, Err: err}
		}
		return client.Forward(ctx, s.buildProviderRequest(req, candidate))
	}

	result := s.retryHandler.Execute(ctx, candidates, requestedModel, forward)
	timer.Stop()

	s.applyOutcome(entry, result.FinalProvider, result.RetryCount, result.Response, timer)
	s.writeLog(ctx, entry)

	return ProxyResponse{
		StatusCode:   result.Response.StatusCode,
		Headers:      proxyhttp.SanitizeResponseHeaders(result.Response.Headers),
		Body:         result.Response.Body,
		TraceID:      traceID,
		TargetModel:  entry.TargetModel,
		ProviderName: entry.ProviderName,
	}, nil
}

// ProcessRequestStream implements spec.md §4.12's streaming path. Retries
// happen only during the connection phase: ExecuteStream resolves a
// successful candidate (or exhausts all of them) before any byte reaches
// the returned channel. On success the channel is owned by the caller —
// draining it to completion is required to get the row logged.
func (s *ProxyService) ProcessRequestStream(ctx context.Context, req ProxyRequest) (ProxyResponse, <-chan StreamChunk, error) {
	traceID := uuid.New().String()
	timer := timing.New()

	entry := s.newLogEntry(req, traceID)
	entry.IsStream = true

	requestedModel := entry.RequestedModel
	if requestedModel == "" {
		resp, err := s.failAndLog(ctx, entry, timer, apierr.ValidationError(`request body is missing a "model" field`, "missing_model"))
		return resp, nil, err
	}

	mapping, err := s.mappingRepo.FindByRequestedModel(ctx, requestedModel)
	if err != nil {
		s.logger.Error("model mapping lookup failed", zap.String("trace_id", traceID), zap.Error(err))
		resp, aerr := s.failAndLog(ctx, entry, timer, apierr.Internal("failed to load model configuration", "mapping_lookup_failed"))
		return resp, nil, aerr
	}
	if mapping == nil || !mapping.IsActive {
		resp, aerr := s.failAndLog(ctx, entry, timer, apierr.NotFoundError(fmt.Sprintf("model %q is not configured", requestedModel), "model_not_configured"))
		return resp, nil, aerr
	}

	reqCtx, _ := s.buildRequestContext(req, requestedModel)
	entry.InputTokens = reqCtx.TokenUsage.InputTokens

	candidates, err := s.resolveCandidates(ctx, reqCtx, mapping)
	if err != nil {
		resp, aerr := s.failAndLog(ctx, entry, timer, apierr.Internal("failed to resolve candidate providers", "candidate_resolution_failed"))
		return resp, nil, aerr
	}
	entry.MatchedProviderCount = len(candidates)
	if len(candidates) == 0 {
		resp, aerr := s.failAndLog(ctx, entry, timer, apierr.ServiceError("no available providers matched this request", "no_candidates"))
		return resp, nil, aerr
	}

	forward := func(ctx context.Context, candidate models.CandidateProvider) (<-chan provider.StreamChunk, error) {
		client, err := s.factory.For(candidate.Protocol)
		if err != nil {
			return nil, err
		}
		return client.ForwardStream(ctx, s.buildProviderRequest(req, candidate))
	}

	result := s.retryHandler.ExecuteStream(ctx, candidates, requestedModel, forward)

	if !result.Success {
		statusCode := result.FirstChunk.Response.StatusCode
		if statusCode == 0 {
			statusCode = 503
		}
		// spec.md §4.12: when the initial upstream status is non-success, the
		// entire body is collected and returned as-is; only fall back to a
		// synthesized envelope when no upstream body was ever captured (e.g.
		// a transport error before any bytes arrived).
		body := result.FailureBody
		if len(body) == 0 {
			body, _ = json.Marshal(apierr.ServiceError("all candidate providers failed", "candidates_exhausted").ToEnvelope())
		}

		timer.Stop()
		s.applyOutcome(entry, result.FinalProvider, result.RetryCount, provider.Response{StatusCode: statusCode, Body: body, Err: fmt.Errorf("all candidate providers failed")}, timer)
		s.writeLog(ctx, entry)

		return ProxyResponse{StatusCode: statusCode, Body: body, TraceID: traceID}, nil, nil
	}

	initial := ProxyResponse{
		StatusCode:   result.FirstChunk.Response.StatusCode,
		Headers:      proxyhttp.SanitizeResponseHeaders(result.FirstChunk.Response.Headers),
		TraceID:      traceID,
		TargetModel:  result.FinalProvider.TargetModel,
		ProviderName: result.FinalProvider.ProviderName,
	}

	out := make(chan StreamChunk, 8)
	go s.relayStream(ctx, entry, timer, result, out)

	return initial, out, nil
}

// relayStream feeds every chunk to both the caller's channel and an SSE
// accumulator, then writes the log row once the stream ends.
func (s *ProxyService) relayStream(ctx context.Context, entry *models.RequestLogEntry, timer *timing.Timer, result StreamRetryResult, out chan<- StreamChunk) {
	defer close(out)

	acc := sse.NewAccumulator(string(result.FinalProvider.Protocol), result.FinalProvider.TargetModel, 4096)
	aborted := false

	relay := func(chunk provider.StreamChunk) bool {
		if len(chunk.Data) > 0 {
			acc.Feed(chunk.Data)
		}
		select {
		case out <- StreamChunk{Data: chunk.Data, Done: chunk.Done, Err: chunk.Response.Err}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !relay(result.FirstChunk) {
		aborted = true
	} else if !result.FirstChunk.Done {
		for chunk := range result.Remaining {
			if !relay(chunk) {
				aborted = true
				break
			}
			if chunk.Done {
				break
			}
		}
	}

	timer.Stop()
	usage := acc.Finalize()
	entry.OutputTokens = usage.OutputTokens
	entry.ResponseBody = jsonPreview(usage.OutputPreview)
	entry.RetryCount = result.RetryCount
	entry.TargetModel = result.FinalProvider.TargetModel
	entry.ProviderID = providerIDPtr(result.FinalProvider)
	entry.ProviderName = result.FinalProvider.ProviderName
	entry.ResponseStatus = result.FirstChunk.Response.StatusCode
	entry.FirstByteDelayMS = result.FirstChunk.Response.FirstByteDelayMS
	if total, ok := timer.TotalTimeMS(); ok {
		entry.TotalTimeMS = total
	}
	if aborted {
		entry.ErrorInfo = "client disconnected before the stream finished"
	}

	s.writeLog(ctx, entry)
}

func (s *ProxyService) newLogEntry(req ProxyRequest, traceID string) *models.RequestLogEntry {
	return &models.RequestLogEntry{
		TraceID:         traceID,
		RequestTime:     nowUTC(),
		APIKeyID:        req.APIKeyID,
		APIKeyName:      req.APIKeyName,
		RequestedModel:  extractModelName(req.Body),
		RequestHeaders:  security.SanitizeHeaders(headerMapFrom(req.Headers)),
		RequestBody:     jsonPreview(SmartTruncateJSON(anyMap(req.Body))),
		IsStream:        isStreamRequested(req.Body),
		RequestProtocol: string(req.RequestProtocol),
	}
}

func (s *ProxyService) buildRequestContext(req ProxyRequest, requestedModel string) (*models.RequestContext, tokencount.Counter) {
	counter := tokencount.ForProtocol(string(req.RequestProtocol))
	reqCtx := &models.RequestContext{
		CurrentModel: requestedModel,
		Headers:      headerMapFrom(req.Headers),
		RequestBody:  req.Body,
	}
	reqCtx.TokenUsage.InputTokens = estimateInputTokens(counter, req.Body, requestedModel)
	return reqCtx, counter
}

func (s *ProxyService) resolveCandidates(ctx context.Context, reqCtx *models.RequestContext, mapping *models.ModelMapping) ([]models.CandidateProvider, error) {
	mappingProviders, err := s.mappingRepo.ListProvidersFor(ctx, mapping.RequestedModel)
	if err != nil {
		return nil, err
	}

	providers, err := s.loadProviders(ctx, mappingProviders)
	if err != nil {
		return nil, err
	}

	return s.ruleEngine.Resolve(reqCtx, mapping, mappingProviders, providers), nil
}

func (s *ProxyService) loadProviders(ctx context.Context, mappingProviders []*models.ModelMappingProvider) (map[int64]*models.Provider, error) {
	out := make(map[int64]*models.Provider, len(mappingProviders))
	for _, mp := range mappingProviders {
		if _, ok := out[mp.ProviderID]; ok {
			continue
		}
		p, err := s.providerRepo.FindByID(ctx, mp.ProviderID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out[mp.ProviderID] = p
		}
	}
	return out, nil
}

func (s *ProxyService) buildProviderRequest(req ProxyRequest, candidate models.CandidateProvider) provider.Request {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	return provider.Request{
		BaseURL:      candidate.BaseURL,
		APIKey:       candidate.APIKey,
		Path:         req.Path,
		Method:       method,
		Headers:      req.Headers,
		Body:         req.Body,
		TargetModel:  candidate.TargetModel,
		ExtraHeaders: candidate.ExtraHeaders,
	}
}

// applyOutcome fills in the fields of a log entry that only become known
// once a forward attempt has run to completion (or the candidates are
// exhausted).
func (s *ProxyService) applyOutcome(entry *models.RequestLogEntry, finalProvider models.CandidateProvider, retryCount int, resp provider.Response, timer *timing.Timer) {
	entry.RetryCount = retryCount
	entry.TargetModel = finalProvider.TargetModel
	entry.ProviderID = providerIDPtr(finalProvider)
	entry.ProviderName = finalProvider.ProviderName
	entry.ResponseStatus = resp.StatusCode
	entry.FirstByteDelayMS = resp.FirstByteDelayMS
	entry.ErrorInfo = errString(resp.Err)
	if total, ok := timer.TotalTimeMS(); ok {
		entry.TotalTimeMS = total
	}

	if tokens, ok := ExtractOutputTokens(resp.Body); ok {
		entry.OutputTokens = tokens
	}
	entry.ResponseBody = jsonPreview(PreviewBody(resp.Body))
}

// failAndLog finalizes and writes a log row for a request that never
// reached candidate resolution (or never resolved one), then returns the
// apierr for the handler to render.
func (s *ProxyService) failAndLog(ctx context.Context, entry *models.RequestLogEntry, timer *timing.Timer, appErr *apierr.AppError) (ProxyResponse, error) {
	timer.Stop()
	entry.ResponseStatus = appErr.StatusCode
	entry.ErrorInfo = appErr.Message
	if total, ok := timer.TotalTimeMS(); ok {
		entry.TotalTimeMS = total
	}
	s.writeLog(ctx, entry)
	return ProxyResponse{}, appErr
}

// writeLog persists the row synchronously, on a context detached from the
// caller's so a client disconnect never drops the log write. Failures are
// logged, not propagated: a lost log row must never fail the HTTP response
// it describes.
func (s *ProxyService) writeLog(ctx context.Context, entry *models.RequestLogEntry) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()
	if _, err := s.logRepo.Insert(writeCtx, entry); err != nil {
		s.logger.Error("failed to write request log", zap.String("trace_id", entry.TraceID), zap.Error(err))
	}
}

func headerMapFrom(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func extractModelName(body map[string]any) string {
	if body == nil {
		return ""
	}
	model, _ := body["model"].(string)
	return model
}

func isStreamRequested(body map[string]any) bool {
	if body == nil {
		return false
	}
	stream, _ := body["stream"].(bool)
	return stream
}

func estimateInputTokens(counter tokencount.Counter, body map[string]any, model string) int {
	if body == nil {
		return 0
	}

	if rawMessages, ok := body["messages"].([]any); ok {
		messages := make([]map[string]any, 0, len(rawMessages))
		for _, m := range rawMessages {
			if mm, ok := m.(map[string]any); ok {
				messages = append(messages, mm)
			}
		}
		return counter.CountMessages(messages, model)
	}

	if prompt, ok := body["prompt"].(string); ok {
		return counter.CountTokens(prompt, model)
	}

	switch v := body["input"].(type) {
	case string:
		return counter.CountTokens(v, model)
	case []any:
		total := 0
		for _, item := range v {
			if s, ok := item.(string); ok {
				total += counter.CountTokens(s, model)
			}
		}
		return total
	}

	return 0
}

func providerIDPtr(c models.CandidateProvider) *int64 {
	if c.ProviderID == 0 {
		return nil
	}
	id := c.ProviderID
	return &id
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func anyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func jsonPreview(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
