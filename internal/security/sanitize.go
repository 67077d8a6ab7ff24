// Package security groups the gateway's cross-cutting security concerns:
// log sanitization, at-rest encryption, admin token signing, and API key
// generation.
package security

import "strings"

var sensitiveHeaderFields = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"api-key":       true,
}

// SanitizeAuthValue masks a bearer-token-shaped credential for logging,
// keeping a prefix and a couple of trailing characters for identification.
func SanitizeAuthValue(value string) string {
	if value == "" {
		return value
	}

	prefix := ""
	token := value
	if len(value) >= 7 && strings.EqualFold(value[:7], "bearer ") {
		prefix = "Bearer "
		token = value[7:]
	}

	if len(token) <= 8 {
		return prefix + "***"
	}
	return prefix + token[:4] + "***...***" + token[len(token)-2:]
}

// SanitizeHeaders returns a copy of headers with authorization/x-api-key/
// api-key values masked. The original map is never modified.
func SanitizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}

	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if sensitiveHeaderFields[strings.ToLower(k)] {
			out[k] = SanitizeAuthValue(v)
		} else {
			out[k] = v
		}
	}
	return out
}

// SanitizeAPIKeyDisplay masks a full API key value for list views.
func SanitizeAPIKeyDisplay(keyValue string) string {
	return SanitizeAuthValue(keyValue)
}
