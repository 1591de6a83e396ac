package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode is a typed string for categorizing application errors.
// Retryability and push-specificity are pure functions of the code, so the
// retry executor and the dispatcher never inspect error messages.
type ErrorCode string

// Complete error code constants.
// All components MUST use these constants instead of hardcoded strings.
const (
	// Configuration / validation (terminal)
	ErrCodeConfigInvalid     ErrorCode = "configuration_invalid"
	ErrCodeValidationToken   ErrorCode = "validation_invalid_token"
	ErrCodeValidationMissing ErrorCode = "validation_missing_field"

	// Provider transport (transient)
	ErrCodeProviderUnavailable ErrorCode = "provider_unavailable"
	ErrCodeProviderThrottled   ErrorCode = "provider_throttled"
	ErrCodeNetworkFailure      ErrorCode = "network_failure"

	// Push-specific rejections (terminal; retrying cannot fix a bad token,
	// an oversized payload, or a disabled platform application)
	ErrCodePushPayloadRejected  ErrorCode = "push_payload_rejected"
	ErrCodePushEndpointDisabled ErrorCode = "push_endpoint_disabled"
	ErrCodePushPlatformInvalid  ErrorCode = "push_platform_invalid"

	// Circuit breaker short-circuit (the call never ran)
	ErrCodeCircuitOpen ErrorCode = "circuit_open"

	// Catch-all
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected"
)

// Retryable reports whether an error carrying this code may succeed on a
// subsequent attempt.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeProviderUnavailable, ErrCodeProviderThrottled, ErrCodeNetworkFailure:
		return true
	default:
		return false
	}
}

// PushSpecific reports whether this code identifies a failure attributable to
// push-notification content or endpoints. The dispatcher uses this allowlist
// to decide whether a degraded (push-free) redelivery is worth attempting.
func (c ErrorCode) PushSpecific() bool {
	switch c {
	case ErrCodePushPayloadRejected, ErrCodePushEndpointDisabled, ErrCodePushPlatformInvalid:
		return true
	default:
		return false
	}
}

// AppError is the standard application error type used throughout the engine.
// All domain errors should be expressed as AppError to enable consistent
// classification, structured logging, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf extracts the ErrorCode from an error chain. Errors that do not carry
// an AppError anywhere in their chain report ErrCodeInternalUnexpected.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}

// IsRetryable classifies an error for the retry executor. AppErrors are
// classified by code; context cancellation and deadline expiry are terminal
// since the caller has already given up. Other errors that never passed
// through the provider boundary (raw SDK transport errors, timeouts) are
// treated as transient, since the boundary maps every terminal condition to
// a non-retryable code.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code.Retryable()
	}
	return true
}

// IsPushSpecific reports whether the error chain carries a push-specific
// AppError code.
func IsPushSpecific(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code.PushSpecific()
	}
	return false
}

// IsCircuitOpen reports whether the error chain carries the breaker-open
// short-circuit, i.e. the wrapped operation never ran.
func IsCircuitOpen(err error) bool {
	return CodeOf(err) == ErrCodeCircuitOpen
}
