// Package provider implements the protocol-aware forwarding layer: one
// ProviderClient per wire protocol, sharing pooled HTTP clients across
// requests.
package provider

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Client forwards a prepared request to one upstream candidate. Only the
// body's "model" field may be rewritten; everything else is forwarded as
// received.
type Client interface {
	Forward(ctx context.Context, req Request) Response
	ForwardStream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}

// Response is what a forward attempt produces, independent of protocol.
type Response struct {
	StatusCode       int
	Headers          http.Header
	Body             []byte
	FirstByteDelayMS *int64
	TotalTimeMS      *int64
	Err              error
}

// IsSuccess reports a 2xx/3xx response.
func (r Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 400
}

// IsServerError reports a 5xx response, the only class the retry handler
// treats as retryable on the same candidate.
func (r Response) IsServerError() bool {
	return r.StatusCode >= 500
}

// StreamChunk is one piece of a forwarded SSE body, paired with the
// in-flight response metadata (status/headers arrive on the first chunk,
// timing fields fill in as the stream progresses).
type StreamChunk struct {
	Data     []byte
	Response Response
	Done     bool
}

// Request is everything a Client needs to build and send an upstream call.
type Request struct {
	BaseURL      string
	APIKey       string
	Path         string
	Method       string
	Headers      http.Header
	Body         map[string]any
	TargetModel  string
	ExtraHeaders map[string]string
}

// PrepareBody returns a copy of body with "model" replaced by targetModel;
// every other field forwards unchanged.
func PrepareBody(body map[string]any, targetModel string) map[string]any {
	out := make(map[string]any, len(body)+1)
	for k, v := range body {
		out[k] = v
	}
	out["model"] = targetModel
	return out
}

var requestStripHeaderSet = map[string]bool{
	"authorization":  true,
	"x-api-key":      true,
	"api-key":        true,
	"content-length": true,
	"host":           true,
	"content-type":   true,
}

// PrepareHeaders builds outbound headers: strips client auth/framing
// headers, then layers the provider API key and any provider-level extra
// headers (highest priority) on top.
func PrepareHeaders(src http.Header, apiKey string, extra map[string]string) http.Header {
	out := make(http.Header, len(src)+2)
	for key, values := range src {
		if requestStripHeaderSet[strings.ToLower(key)] {
			continue
		}
		for _, v := range values {
			out.Add(key, v)
		}
	}

	if apiKey != "" {
		out.Set("Authorization", "Bearer "+apiKey)
	}
	for k, v := range extra {
		out.Set(k, v)
	}
	return out
}

// NewPooledClient returns an *http.Client tuned for upstream fan-out: a
// generous idle-connection pool so repeated requests to the same provider
// reuse TCP connections. timeout of 0 disables the client-level deadline
// (used for the streaming client; cancellation then comes from ctx).
func NewPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
