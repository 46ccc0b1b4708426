package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code, so a specific message still compares equal to its sentinel
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden           = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrRateLimited         = NewDomainError("RATE_LIMITED", "Too many requests")
	ErrPaymentRequired     = NewDomainError("PAYMENT_REQUIRED", "An active subscription is required")
)

// NotFound returns a NOT_FOUND error naming the missing resource
func NotFound(resource string) *DomainError {
	return NewDomainError("NOT_FOUND", resource+" not found")
}

// InvalidInput returns an INVALID_INPUT error with a specific message
func InvalidInput(message string) *DomainError {
	return NewDomainError("INVALID_INPUT", message)
}

// InvalidState returns an INVALID_STATE error with a specific message
func InvalidState(message string) *DomainError {
	return NewDomainError("INVALID_STATE", message)
}

// Forbidden returns a FORBIDDEN error with a specific message
func Forbidden(message string) *DomainError {
	return NewDomainError("FORBIDDEN", message)
}

// AsDomainError extracts a *DomainError from an error chain
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
