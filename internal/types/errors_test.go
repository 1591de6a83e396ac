package types

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodeRetryable(t *testing.T) {
	retryable := []ErrorCode{
		ErrCodeProviderUnavailable,
		ErrCodeProviderThrottled,
		ErrCodeNetworkFailure,
	}
	terminal := []ErrorCode{
		ErrCodeConfigInvalid,
		ErrCodeValidationToken,
		ErrCodeValidationMissing,
		ErrCodePushPayloadRejected,
		ErrCodePushEndpointDisabled,
		ErrCodePushPlatformInvalid,
		ErrCodeCircuitOpen,
		ErrCodeInternalUnexpected,
	}

	for _, c := range retryable {
		if !c.Retryable() {
			t.Errorf("%s should be retryable", c)
		}
	}
	for _, c := range terminal {
		if c.Retryable() {
			t.Errorf("%s should not be retryable", c)
		}
	}
}

func TestErrorCodePushSpecific(t *testing.T) {
	if !ErrCodePushPayloadRejected.PushSpecific() {
		t.Error("push_payload_rejected should be push-specific")
	}
	if !ErrCodePushEndpointDisabled.PushSpecific() {
		t.Error("push_endpoint_disabled should be push-specific")
	}
	if ErrCodeProviderUnavailable.PushSpecific() {
		t.Error("provider_unavailable should not be push-specific")
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := NewAppError(ErrCodeProviderUnavailable, "publish failed", inner)

	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped error")
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatal("expected errors.As to find AppError")
	}
	if appErr.Code != ErrCodeProviderUnavailable {
		t.Errorf("unexpected code %s", appErr.Code)
	}
}

func TestCodeOfWrappedChain(t *testing.T) {
	base := NewAppError(ErrCodePushEndpointDisabled, "endpoint disabled", nil)
	wrapped := fmt.Errorf("dispatch: %w", base)

	if got := CodeOf(wrapped); got != ErrCodePushEndpointDisabled {
		t.Errorf("CodeOf = %s, want push_endpoint_disabled", got)
	}
	if !IsPushSpecific(wrapped) {
		t.Error("expected wrapped chain to be push-specific")
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != ErrCodeInternalUnexpected {
		t.Errorf("CodeOf plain error = %s, want internal_unexpected", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(errors.New("connection reset")) {
		t.Error("unclassified transport errors should be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
	if IsRetryable(NewAppError(ErrCodeValidationToken, "bad token", nil)) {
		t.Error("validation errors are terminal")
	}
	if !IsRetryable(NewAppError(ErrCodeProviderThrottled, "throttled", nil)) {
		t.Error("throttling is retryable")
	}
}

func TestIsRetryableContextErrors(t *testing.T) {
	if IsRetryable(context.Canceled) {
		t.Error("a canceled context is terminal, not worth retrying")
	}
	if IsRetryable(context.DeadlineExceeded) {
		t.Error("an expired deadline is terminal, not worth retrying")
	}
	if IsRetryable(fmt.Errorf("fetch endpoint: %w", context.Canceled)) {
		t.Error("cancellation must be detected through the chain")
	}
}

func TestIsCircuitOpen(t *testing.T) {
	open := NewAppError(ErrCodeCircuitOpen, "breaker open", nil)
	if !IsCircuitOpen(fmt.Errorf("send: %w", open)) {
		t.Error("expected circuit-open detection through the chain")
	}
	if IsCircuitOpen(NewAppError(ErrCodeProviderUnavailable, "down", nil)) {
		t.Error("provider failure is not a short-circuit")
	}
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	base := NewAppError(ErrCodeProviderUnavailable, "down", nil)
	derived := base.WithDetails(map[string]any{"attempt": 3})

	if len(base.Details) != 0 {
		t.Error("WithDetails mutated the original error")
	}
	if derived.Details["attempt"] != 3 {
		t.Error("derived error missing detail")
	}
}
