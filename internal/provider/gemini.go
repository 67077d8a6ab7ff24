package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/user/llm-proxy-go/internal/proxyhttp"
	"github.com/user/llm-proxy-go/internal/timing"
)

// GeminiClient forwards Gemini API requests. Unlike OpenAI/Anthropic, the
// gateway's path (already shaped like "/v1beta/models/...:generateContent")
// is concatenated onto the base URL as-is — no "/v1" stripping — and
// authentication goes on x-goog-api-key.
type GeminiClient struct {
	httpClient   *http.Client
	streamClient *http.Client
}

func NewGeminiClient(timeout time.Duration) *GeminiClient {
	return &GeminiClient{
		httpClient:   NewPooledClient(timeout),
		streamClient: NewPooledClient(0),
	}
}

func (c *GeminiClient) buildURL(baseURL, path string) string {
	return proxyhttp.JoinBaseURL(baseURL, path)
}

func (c *GeminiClient) prepareHeaders(req Request) http.Header {
	headers := PrepareHeaders(req.Headers, "", req.ExtraHeaders)
	headers.Del("x-goog-api-key")
	headers.Set("Content-Type", "application/json")
	headers.Set("x-goog-api-key", req.APIKey)
	if ua := req.Headers.Get("User-Agent"); ua != "" {
		headers.Set("User-Agent", ua)
	}
	return headers
}

func (c *GeminiClient) Forward(ctx context.Context, req Request) Response {
	url := c.buildURL(req.BaseURL, req.Path)
	body := PrepareBody(req.Body, req.TargetModel)
	headers := c.prepareHeaders(req)

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{StatusCode: 500, Err: fmt.Errorf("encode request body: %w", err)}
	}

	timer := timing.New()
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bytes.NewReader(payload))
	if err != nil {
		timer.Stop()
		return Response{StatusCode: 500, Err: err}
	}
	httpReq.Header = headers

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		timer.Stop()
		return classifyTransportError(err, timer)
	}
	defer resp.Body.Close()
	timer.MarkFirstByte()

	respBody, err := io.ReadAll(resp.Body)
	timer.Stop()
	if err != nil {
		return Response{StatusCode: 502, Err: fmt.Errorf("read response body: %w", err)}
	}

	ttfb, _ := timer.FirstByteDelayMS()
	total, _ := timer.TotalTimeMS()
	return Response{
		StatusCode:       resp.StatusCode,
		Headers:          proxyhttp.SanitizeResponseHeaders(resp.Header),
		Body:             respBody,
		FirstByteDelayMS: &ttfb,
		TotalTimeMS:      &total,
	}
}

func (c *GeminiClient) ForwardStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	url := c.buildURL(req.BaseURL, req.Path)
	body := PrepareBody(req.Body, req.TargetModel)
	headers := c.prepareHeaders(req)
	headers.Set("Accept", "text/event-stream")

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header = headers

	timer := timing.New()
	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		timer.Stop()
		errResp := classifyTransportError(err, timer)
		ch := make(chan StreamChunk, 1)
		ch <- StreamChunk{Response: errResp, Done: true}
		close(ch)
		return ch, nil
	}

	out := make(chan StreamChunk, 8)
	go streamBody(ctx, resp, timer, out)
	return out, nil
}

// stripModelNamePrefix removes the "models/" prefix Gemini's list-models
// response puts on every model name, mutating body in place. A no-op for
// any shape other than {"models": [{"name": ...}, ...]}.
func stripModelNamePrefix(body any) {
	m, ok := body.(map[string]any)
	if !ok {
		return
	}
	models, ok := m["models"].([]any)
	if !ok {
		return
	}
	for _, entry := range models {
		em, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := em["name"].(string); ok {
			em["name"] = strings.TrimPrefix(name, "models/")
		}
	}
}
