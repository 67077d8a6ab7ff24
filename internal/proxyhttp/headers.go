// Package proxyhttp holds the HTTP plumbing shared by every provider
// client: header hygiene on both the upstream-request and ingress-response
// sides, and base URL composition.
package proxyhttp

import (
	"net/http"
	"strings"
)

// hopByHopHeaders are RFC 7230 hop-by-hop headers plus the response framing
// headers that become invalid once the gateway re-frames a response body
// (decompression, SSE re-emission).
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"content-length":      true,
	"content-encoding":    true,
}

// requestStripHeaders are stripped from the inbound client request before
// values are copied onto the outbound upstream request; the gateway sets
// its own authentication, host, and framing headers.
var requestStripHeaders = map[string]bool{
	"authorization":  true,
	"x-api-key":      true,
	"api-key":        true,
	"content-length": true,
	"host":           true,
	"content-type":   true,
}

// SanitizeResponseHeaders drops hop-by-hop and framing headers from an
// upstream response before it is forwarded to the ingress client.
func SanitizeResponseHeaders(headers http.Header) http.Header {
	out := make(http.Header, len(headers))
	for key, values := range headers {
		if hopByHopHeaders[strings.ToLower(key)] {
			continue
		}
		out[key] = append([]string(nil), values...)
	}
	return out
}

// CopyForwardableHeaders copies src into dst, skipping headers the gateway
// manages itself (auth, host, content framing). Existing dst entries for a
// forwarded key are replaced, matching per-request header semantics.
func CopyForwardableHeaders(src, dst http.Header) {
	for key, values := range src {
		if requestStripHeaders[strings.ToLower(key)] {
			continue
		}
		for _, v := range values {
			dst.Set(key, v)
		}
	}
}

// StripGatewayPrefix removes a leading "/v1" path segment so the remainder
// can be concatenated onto a provider's base URL. Providers with bespoke
// path composition (e.g. Gemini) bypass this and build their own path.
func StripGatewayPrefix(path string) string {
	const prefix = "/v1"
	if strings.HasPrefix(path, prefix) {
		rest := path[len(prefix):]
		if rest == "" {
			return "/"
		}
		return rest
	}
	return path
}

// JoinBaseURL concatenates a provider base URL (trailing slash stripped)
// with a gateway-relative path (expected to start with "/").
func JoinBaseURL(baseURL, path string) string {
	return strings.TrimSuffix(baseURL, "/") + path
}
