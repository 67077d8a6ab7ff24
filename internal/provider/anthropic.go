package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/llm-proxy-go/internal/proxyhttp"
	"github.com/user/llm-proxy-go/internal/timing"
)

const defaultAnthropicVersion = "2023-06-01"

// AnthropicClient forwards Anthropic Messages API requests. Authentication
// goes on x-api-key rather than Authorization, and an anthropic-version
// header is always present.
type AnthropicClient struct {
	httpClient   *http.Client
	streamClient *http.Client
}

func NewAnthropicClient(timeout time.Duration) *AnthropicClient {
	return &AnthropicClient{
		httpClient:   NewPooledClient(timeout),
		streamClient: NewPooledClient(0),
	}
}

func (c *AnthropicClient) prepareHeaders(req Request) http.Header {
	headers := PrepareHeaders(req.Headers, "", req.ExtraHeaders)
	headers.Set("Content-Type", "application/json")
	headers.Set("x-api-key", req.APIKey)
	version := req.Headers.Get("Anthropic-Version")
	if version == "" {
		version = defaultAnthropicVersion
	}
	headers.Set("anthropic-version", version)
	if ua := req.Headers.Get("User-Agent"); ua != "" {
		headers.Set("User-Agent", ua)
	}
	return headers
}

func (c *AnthropicClient) buildURL(baseURL, path string) string {
	return proxyhttp.JoinBaseURL(baseURL, proxyhttp.StripGatewayPrefix(path))
}

func (c *AnthropicClient) Forward(ctx context.Context, req Request) Response {
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

func (c *AnthropicClient) ForwardStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
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
