// Package apierr defines the gateway's typed error hierarchy and the shape
// it serializes to on the HTTP boundary.
package apierr

import "fmt"

// AppError is the base of every error the gateway returns to a client, with
// enough shape to render a consistent error envelope.
type AppError struct {
	Message    string
	ErrorType  string
	Code       string
	Details    map[string]any
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
}

// StatusCode reports the HTTP status the error should render as. Satisfies
// the httpError interface handlers use to translate an error into a
// response.
func (e *AppError) HTTPStatus() int { return e.StatusCode }

// Envelope is the JSON shape returned to clients.
type Envelope struct {
	Error EnvelopeBody `json:"error"`
}

type EnvelopeBody struct {
	Message string         `json:"message"`
	Type    string         `json:"type"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// ToEnvelope renders the error into its client-facing JSON shape.
func (e *AppError) ToEnvelope() Envelope {
	return Envelope{Error: EnvelopeBody{
		Message: e.Message,
		Type:    e.ErrorType,
		Code:    e.Code,
		Details: e.Details,
	}}
}

func New(message, errorType, code string, statusCode int, details map[string]any) *AppError {
	return &AppError{
		Message:    message,
		ErrorType:  errorType,
		Code:       code,
		Details:    details,
		StatusCode: statusCode,
	}
}

// AuthenticationError: invalid or disabled API key. 401.
func AuthenticationError(message, code string) *AppError {
	if message == "" {
		message = "Authentication failed"
	}
	if code == "" {
		code = "invalid_api_key"
	}
	return New(message, "authentication_error", code, 401, nil)
}

// NotFoundError: requested resource (model, provider) does not exist. 404.
func NotFoundError(message, code string) *AppError {
	if message == "" {
		message = "Resource not found"
	}
	if code == "" {
		code = "not_found"
	}
	return New(message, "not_found_error", code, 404, nil)
}

// ConflictError: duplicate resource or blocked deletion due to references. 409.
func ConflictError(message, code string) *AppError {
	if message == "" {
		message = "Resource conflict"
	}
	if code == "" {
		code = "conflict"
	}
	return New(message, "conflict_error", code, 409, nil)
}

// ValidationError: request parameters don't meet requirements. 422.
func ValidationError(message, code string) *AppError {
	if message == "" {
		message = "Validation failed"
	}
	if code == "" {
		code = "validation_error"
	}
	return New(message, "validation_error", code, 422, nil)
}

// UpstreamError: an upstream provider itself returned an error. 502 by
// default; pass through the upstream's own status when known.
func UpstreamError(message, code string, statusCode int) *AppError {
	if message == "" {
		message = "Upstream service error"
	}
	if code == "" {
		code = "upstream_error"
	}
	if statusCode == 0 {
		statusCode = 502
	}
	return New(message, "upstream_error", code, statusCode, nil)
}

// ServiceError: internal failure, e.g. candidates exhausted. 503.
func ServiceError(message, code string) *AppError {
	if message == "" {
		message = "Service error"
	}
	if code == "" {
		code = "service_error"
	}
	return New(message, "service_error", code, 503, nil)
}

// TimeoutError: the gateway gave up waiting on an upstream. 504.
func TimeoutError(message, code string) *AppError {
	if message == "" {
		message = "Upstream request timed out"
	}
	if code == "" {
		code = "timeout"
	}
	return New(message, "timeout_error", code, 504, nil)
}

// Internal: unclassified internal failure. 500.
func Internal(message, code string) *AppError {
	if message == "" {
		message = "Internal server error"
	}
	if code == "" {
		code = "internal_error"
	}
	return New(message, "app_error", code, 500, nil)
}
