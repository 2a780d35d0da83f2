package domain

import "errors"

// Error is a domain error with a stable machine-readable code.
// The transport layer maps codes to HTTP statuses; domain and service
// code only ever deals in codes.
type Error struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// NewError creates a domain error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Stable error codes. These are part of the public API contract and
// must not be renamed.
const (
	CodeLicenseNotFound           = "LICENSE_NOT_FOUND"
	CodeLicenseExpired            = "LICENSE_EXPIRED"
	CodeLicenseSuspended          = "LICENSE_SUSPENDED"
	CodeLicenseCancelled          = "LICENSE_CANCELLED"
	CodeInvalidLicenseKey         = "INVALID_LICENSE_KEY"
	CodeSeatLimitExceeded         = "SEAT_LIMIT_EXCEEDED"
	CodeDuplicateActive           = "DUPLICATE_ACTIVE"
	CodeBrandNotFound             = "BRAND_NOT_FOUND"
	CodeProductNotFound           = "PRODUCT_NOT_FOUND"
	CodeInvalidAPIKey             = "INVALID_API_KEY"
	CodeActivationNotFound        = "ACTIVATION_NOT_FOUND"
	CodeInvalidInstanceIdentifier = "INVALID_INSTANCE_IDENTIFIER"
	CodeInvalidLicenseStatus      = "INVALID_LICENSE_STATUS"
	CodeInvalidExpiration         = "INVALID_EXPIRATION"
	CodeValidationError           = "VALIDATION_ERROR"
	CodeRateLimitExceeded         = "RATE_LIMIT_EXCEEDED"
	CodeIdempotencyInProgress     = "IDEMPOTENCY_IN_PROGRESS"
	CodeForbidden                 = "FORBIDDEN"
	CodeNotFound                  = "NOT_FOUND"
	CodeInternalError             = "INTERNAL_ERROR"
)

// Predefined domain errors for common conditions.
var (
	ErrLicenseNotFound           = NewError(CodeLicenseNotFound, "License not found")
	ErrLicenseExpired            = NewError(CodeLicenseExpired, "License has expired")
	ErrLicenseSuspended          = NewError(CodeLicenseSuspended, "License is suspended")
	ErrLicenseCancelled          = NewError(CodeLicenseCancelled, "License is cancelled")
	ErrInvalidLicenseKey         = NewError(CodeInvalidLicenseKey, "Invalid license key")
	ErrSeatLimitExceeded         = NewError(CodeSeatLimitExceeded, "License seat limit exceeded")
	ErrDuplicateActive           = NewError(CodeDuplicateActive, "Instance already activated")
	ErrBrandNotFound             = NewError(CodeBrandNotFound, "Brand not found")
	ErrProductNotFound           = NewError(CodeProductNotFound, "Product not found")
	ErrInvalidAPIKey             = NewError(CodeInvalidAPIKey, "Invalid API key")
	ErrActivationNotFound        = NewError(CodeActivationNotFound, "Activation not found")
	ErrInvalidInstanceIdentifier = NewError(CodeInvalidInstanceIdentifier, "Invalid instance identifier")
	ErrInvalidLicenseStatus      = NewError(CodeInvalidLicenseStatus, "Invalid license status")
	ErrInvalidExpiration         = NewError(CodeInvalidExpiration, "Expiration date cannot be in the past")
	ErrRateLimitExceeded         = NewError(CodeRateLimitExceeded, "Rate limit exceeded. Please try again later.")
	ErrIdempotencyInProgress     = NewError(CodeIdempotencyInProgress, "A request with this idempotency key is still in progress")
	ErrForbidden                 = NewError(CodeForbidden, "Access denied")
	ErrNotFound                  = NewError(CodeNotFound, "Resource not found")
)

// CodeOf extracts the domain error code from err, or INTERNAL_ERROR if
// err is not a domain error.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternalError
}

// IsCode reports whether err is a domain error with the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
