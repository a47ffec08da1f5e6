package escrow

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the escrow engine.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodePreconditionFailed   = "PRECONDITION_FAILED"
	CodeAuthorizationFailed  = "AUTHORIZATION_FAILED"
	CodeDuplicateTransaction = "DUPLICATE_TRANSACTION"
	CodeTransactionMismatch  = "TRANSACTION_MISMATCH"
	CodeSettlementFailed     = "SETTLEMENT_FAILED"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
)

// Error is a structured escrow error with a stable code for API clients.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a structured error with the given code.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewFieldError creates a validation error tied to a specific input field.
func NewFieldError(field, message string) *Error {
	return &Error{Code: CodeValidationFailed, Message: message, Field: field}
}

// WithHint attaches a recovery hint for the client.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// HTTPStatus maps an error to the HTTP status code it should produce.
func HTTPStatus(err error) int {
	var ee *Error
	if !errors.As(err, &ee) {
		return http.StatusInternalServerError
	}
	switch ee.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidationFailed:
		return http.StatusBadRequest
	case CodePreconditionFailed:
		return http.StatusConflict
	case CodeAuthorizationFailed:
		return http.StatusForbidden
	case CodeDuplicateTransaction:
		return http.StatusConflict
	case CodeTransactionMismatch:
		return http.StatusUnprocessableEntity
	case CodeSettlementFailed:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the escrow error code, or empty string for foreign errors.
func CodeOf(err error) string {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}
