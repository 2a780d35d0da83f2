// Package errors maps domain errors to the HTTP error contract.
//
// Every error response has the shape
//
//	{"error": {"code": "<UPPER_SNAKE>", "message": "<human>"}}
//
// with the trace ID carried in the X-Trace-ID header, never in the
// body. Domain code signals failures with *domain.Error values; this
// package owns the code → status mapping.
package errors

import (
	"net/http"

	"github.com/go-chi/render"

	"licensehub/internal/domain"
)

// APIError is a renderable HTTP error.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

type envelope struct {
	Error *APIError `json:"error"`
}

// Render implements render.Renderer for the error envelope.
func (e *envelope) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.Error.StatusCode)
	return nil
}

// New creates an APIError.
func New(statusCode int, code, message string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Message: message}
}

// statusByCode maps every stable domain error code to an HTTP status.
// Codes absent from the map are internal errors.
var statusByCode = map[string]int{
	domain.CodeValidationError:           http.StatusBadRequest,
	domain.CodeInvalidInstanceIdentifier: http.StatusBadRequest,
	domain.CodeInvalidLicenseKey:         http.StatusUnauthorized,
	domain.CodeInvalidAPIKey:             http.StatusUnauthorized,
	domain.CodeForbidden:                 http.StatusForbidden,
	domain.CodeLicenseNotFound:           http.StatusNotFound,
	domain.CodeBrandNotFound:             http.StatusNotFound,
	domain.CodeProductNotFound:           http.StatusNotFound,
	domain.CodeActivationNotFound:        http.StatusNotFound,
	domain.CodeNotFound:                  http.StatusNotFound,
	domain.CodeDuplicateActive:           http.StatusConflict,
	domain.CodeIdempotencyInProgress:     http.StatusConflict,
	domain.CodeLicenseExpired:            http.StatusUnprocessableEntity,
	domain.CodeLicenseSuspended:          http.StatusUnprocessableEntity,
	domain.CodeLicenseCancelled:          http.StatusUnprocessableEntity,
	domain.CodeSeatLimitExceeded:         http.StatusUnprocessableEntity,
	domain.CodeInvalidLicenseStatus:      http.StatusUnprocessableEntity,
	domain.CodeInvalidExpiration:         http.StatusUnprocessableEntity,
	domain.CodeRateLimitExceeded:         http.StatusTooManyRequests,
}

// StatusForCode returns the HTTP status for a domain error code.
func StatusForCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError converts any error into an APIError. Domain errors keep
// their code and message; everything else becomes an opaque
// INTERNAL_ERROR so internals never leak to clients.
func FromError(err error) *APIError {
	code := domain.CodeOf(err)
	status := StatusForCode(code)
	if status == http.StatusInternalServerError {
		return New(status, domain.CodeInternalError, "An internal error occurred")
	}
	return New(status, code, err.Error())
}

// Envelope wraps an APIError in the response body shape.
func Envelope(e *APIError) render.Renderer {
	return &envelope{Error: e}
}
