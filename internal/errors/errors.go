// Package errors provides custom error types for the budget API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Ledger errors.
var (
	ErrBudgetPeriodNotFound = &AppError{Code: "BUDGET_PERIOD_NOT_FOUND", Message: "No budget period found", StatusCode: http.StatusNotFound}
	ErrNegativeAmount       = &AppError{Code: "NEGATIVE_AMOUNT", Message: "Amount cannot be negative", StatusCode: http.StatusBadRequest}
	ErrConcurrencyConflict  = &AppError{Code: "CONCURRENCY_CONFLICT", Message: "Budget was modified concurrently", StatusCode: http.StatusConflict}
	ErrBulkRolloverFailed   = &AppError{Code: "BULK_ROLLOVER_FAILED", Message: "Bulk budget rollover failed, no changes were applied", StatusCode: http.StatusInternalServerError}
)

// Collaborator errors.
var (
	ErrMembershipUnavailable = &AppError{Code: "MEMBERSHIP_UNAVAILABLE", Message: "Membership lookup is unavailable", StatusCode: http.StatusServiceUnavailable}
)

// Order errors.
var (
	ErrOrderNotFound = &AppError{Code: "ORDER_NOT_FOUND", Message: "Order not found", StatusCode: http.StatusNotFound}
)
