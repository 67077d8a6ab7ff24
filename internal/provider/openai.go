package provider

import (
	"bufio"
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

// OpenAIClient forwards OpenAI-wire-compatible requests (chat completions,
// completions, embeddings) — used directly for "openai" and reused as-is
// for the zhipu/aliyun/moonshot OpenAI-compatible aliases.
type OpenAIClient struct {
	httpClient   *http.Client
	streamClient *http.Client
}

func NewOpenAIClient(timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		httpClient:   NewPooledClient(timeout),
		streamClient: NewPooledClient(0),
	}
}

func (c *OpenAIClient) buildURL(baseURL, path string) string {
	return proxyhttp.JoinBaseURL(baseURL, proxyhttp.StripGatewayPrefix(path))
}

// Forward sends a single non-streaming request and waits for the full body.
func (c *OpenAIClient) Forward(ctx context.Context, req Request) Response {
	url := c.buildURL(req.BaseURL, req.Path)
	body := PrepareBody(req.Body, req.TargetModel)
	headers := PrepareHeaders(req.Headers, req.APIKey, req.ExtraHeaders)
	headers.Set("Content-Type", "application/json")

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

// ForwardStream sends a streaming request and relays the raw upstream bytes
// chunk-by-chunk on the returned channel, closing it once the body is fully
// drained or the context is cancelled.
func (c *OpenAIClient) ForwardStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	url := c.buildURL(req.BaseURL, req.Path)
	body := PrepareBody(req.Body, req.TargetModel)
	headers := PrepareHeaders(req.Headers, req.APIKey, req.ExtraHeaders)
	headers.Set("Content-Type", "application/json")
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

func streamBody(ctx context.Context, resp *http.Response, timer *timing.Timer, out chan<- StreamChunk) {
	defer close(out)
	defer resp.Body.Close()

	meta := Response{
		StatusCode: resp.StatusCode,
		Headers:    proxyhttp.SanitizeResponseHeaders(resp.Header),
	}

	reader := bufio.NewReaderSize(resp.Body, 32*1024)
	buf := make([]byte, 32*1024)
	firstChunk := true

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := reader.Read(buf)
		if n > 0 {
			if firstChunk {
				timer.MarkFirstByte()
				ttfb, _ := timer.FirstByteDelayMS()
				meta.FirstByteDelayMS = &ttfb
				firstChunk = false
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- StreamChunk{Data: chunk, Response: meta}
		}
		if err != nil {
			timer.Stop()
			total, _ := timer.TotalTimeMS()
			meta.TotalTimeMS = &total
			if err != io.EOF {
				meta.Err = err
			}
			out <- StreamChunk{Response: meta, Done: true}
			return
		}
	}
}

func classifyTransportError(err error, timer *timing.Timer) Response {
	ttfb, _ := timer.FirstByteDelayMS()
	total, _ := timer.TotalTimeMS()
	status := 502
	if isTimeoutError(err) {
		status = 504
	}
	return Response{
		StatusCode:       status,
		Err:              err,
		FirstByteDelayMS: &ttfb,
		TotalTimeMS:      &total,
	}
}

type timeouter interface{ Timeout() bool }

func isTimeoutError(err error) bool {
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
