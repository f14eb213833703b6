package errors

import (
	"errors"
	"time"
)

// DetailRetryAfter is the detail key carrying the wait in whole seconds
const DetailRetryAfter = "retry_after_seconds"

type baseError struct {
	message    string
	details    map[string]any
	retryAfter time.Duration
}

func (e *baseError) Error() string {
	return e.message
}

// Details returns extra fields rendered next to the error message
func (e *baseError) Details() map[string]any {
	return e.details
}

func (e *baseError) withDetail(key string, value any) {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
}

func (e *baseError) setRetryAfter(d time.Duration) {
	e.retryAfter = d
	e.withDetail(DetailRetryAfter, RetryAfterSeconds(d))
}

// RetryAfter returns how long the client has to wait before repeating the request
func (e *baseError) RetryAfter() time.Duration {
	return e.retryAfter
}

// ValidationError represents a validation error (HTTP 400)
type ValidationError struct {
	baseError
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{baseError{message: message}}
}

// WithRetryAfter marks the request as repeatable after d
func (e *ValidationError) WithRetryAfter(d time.Duration) *ValidationError {
	e.setRetryAfter(d)
	return e
}

// UnauthorizedError represents an authentication error (HTTP 401)
type UnauthorizedError struct {
	baseError
}

func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{baseError{message: message}}
}

// NotFoundError represents a not found error (HTTP 404)
type NotFoundError struct {
	baseError
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{baseError{message: message}}
}

// ConflictError represents a conflict error (HTTP 409)
type ConflictError struct {
	baseError
}

func NewConflictError(message string) *ConflictError {
	return &ConflictError{baseError{message: message}}
}

// TooManyRequestsError represents a rate limited request (HTTP 429)
type TooManyRequestsError struct {
	baseError
}

func NewTooManyRequestsError(message string) *TooManyRequestsError {
	return &TooManyRequestsError{baseError{message: message}}
}

// WithRetryAfter tells the client when a token is available again
func (e *TooManyRequestsError) WithRetryAfter(d time.Duration) *TooManyRequestsError {
	e.setRetryAfter(d)
	return e
}

// InternalError represents an internal server error (HTTP 500)
type InternalError struct {
	baseError
	cause error
}

// WrapInternal hides cause from the client but keeps it for logging
func WrapInternal(message string, cause error) *InternalError {
	return &InternalError{baseError: baseError{message: message}, cause: cause}
}

func (e *InternalError) Unwrap() error {
	return e.cause
}

// DetailsOf returns the detail fields of err, if any
func DetailsOf(err error) map[string]any {
	var detailed interface{ Details() map[string]any }
	if errors.As(err, &detailed) {
		return detailed.Details()
	}
	return nil
}

// RetryAfterOf returns the wait carried by err, if any
func RetryAfterOf(err error) (time.Duration, bool) {
	var waiting interface{ RetryAfter() time.Duration }
	if errors.As(err, &waiting) && waiting.RetryAfter() > 0 {
		return waiting.RetryAfter(), true
	}
	return 0, false
}

// RetryAfterSeconds rounds up so a client never retries too early
func RetryAfterSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}
