package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the typed error that crosses package boundaries. Status is the HTTP
// status the server layer responds with when the error reaches a handler.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// New creates a new Error
func New(message string, status int) *Error {
	return &Error{
		Message: message,
		Status:  status,
	}
}

var (
	ErrInternalServerError = New("internal server error", http.StatusInternalServerError)
	ErrNotFound            = New("not found", http.StatusNotFound)
	ErrBadRequest          = New("bad request", http.StatusBadRequest)
)

// NetworkFailure marks an upstream connectivity or timeout error. Retries are a
// user action, never automatic.
func NetworkFailure(err error) *Error {
	if err == nil {
		return New("messaging service unreachable", http.StatusServiceUnavailable)
	}
	return New(fmt.Sprintf("messaging service unreachable: %v", err), http.StatusServiceUnavailable)
}

// ValidationFailure rejects input before any network call is made.
func ValidationFailure(message string) *Error {
	return New(message, http.StatusBadRequest)
}

// ServerError wraps a non-2xx upstream response body.
func ServerError(status int, body string) *Error {
	if body == "" {
		body = http.StatusText(status)
	}
	return New(fmt.Sprintf("messaging service error: %s", body), http.StatusBadGateway)
}

// IsNetworkFailure reports whether err came from NetworkFailure.
func IsNetworkFailure(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Status == http.StatusServiceUnavailable
	}
	return false
}

// IsValidationFailure reports whether err came from ValidationFailure.
func IsValidationFailure(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Status == http.StatusBadRequest
	}
	return false
}

// Status extracts the HTTP status for a handler response, defaulting to 500.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}
