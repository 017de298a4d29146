package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrNetwork        = errors.New("network failure")
	ErrRejected       = errors.New("rejected by backend")
	ErrCartNotSettled = errors.New("cart has pending operations")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error. The engine surfaces this to callers
// without attempting any local mutation.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Network wraps a transport failure. Local state must be rolled back to the
// last confirmed value before this is reported.
func Network(err error) *AppError {
	return &AppError{
		Code:    "NETWORK_ERROR",
		Message: "backend unreachable",
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%w: %w", ErrNetwork, err),
	}
}

// Rejected creates a domain rejection (e.g. insufficient stock). The reason
// is preserved verbatim so the UI can show it to the user.
func Rejected(reason string, status int) *AppError {
	if status < 400 || status >= 500 {
		status = http.StatusUnprocessableEntity
	}
	return &AppError{
		Code:    "REJECTED",
		Message: reason,
		Status:  status,
		Err:     ErrRejected,
	}
}

// CartNotSettled is returned when checkout is attempted while mutations are
// still in flight. The caller must wait or retry; no state is changed.
func CartNotSettled(pending int) *AppError {
	return &AppError{
		Code:    "CART_NOT_SETTLED",
		Message: fmt.Sprintf("%d operation(s) still pending", pending),
		Status:  http.StatusConflict,
		Err:     ErrCartNotSettled,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// RejectionReason extracts the verbatim rejection reason from a domain
// rejection error. The second return is false for any other error kind.
func RejectionReason(err error) (string, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && errors.Is(appErr, ErrRejected) {
		return appErr.Message, true
	}
	return "", false
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrCartNotSettled):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNetwork):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
