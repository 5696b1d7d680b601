package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation rejects malformed input before any mutation happens.
	ErrValidation = fmt.Errorf("validation failed")
	// ErrNotFound marks a referenced room, message or membership as absent.
	ErrNotFound = fmt.Errorf("not found")
	// ErrForbidden marks an actor lacking the required relationship to a resource.
	ErrForbidden = fmt.Errorf("forbidden")
	// ErrOperationNotAllowed marks a well-formed request violating a domain
	// invariant, such as removing the room creator.
	ErrOperationNotAllowed = fmt.Errorf("operation not allowed")
	// ErrConflict marks a concurrent mutation that violated a uniqueness or
	// state invariant.
	ErrConflict = fmt.Errorf("conflict")

	ErrWorkerPanic = fmt.Errorf("worker panic")
)

// Validationf wraps ErrValidation with a reason, keeping errors.Is intact.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFoundf wraps ErrNotFound with the missing resource.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// MapToHTTPStatus translates a domain error into the status code the
// HTTP/websocket gateway should answer with. Unknown errors stay 500 so
// internal details never leak into a response status.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrOperationNotAllowed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
