// Package devices manages the lifecycle of push-notification device
// endpoints: registration, token rotation, invalidation, and batch cleanup.
// The provider's endpoint store owns the registrations; this package only
// references them by their opaque endpoint ARN.
package devices

import (
	"context"
	"fmt"
	"strings"

	"spendwatch/internal/provider"
	"spendwatch/internal/resilience"
	"spendwatch/internal/types"
)

// validationToken is the well-formed throwaway token used by ValidateConfig.
var validationToken = strings.Repeat("0", 64)

// EndpointStore is the provider surface the manager depends on. Implemented
// by provider.Client; tests supply a fake.
type EndpointStore interface {
	CreateEndpoint(ctx context.Context, platformARN, token, userData string) (string, error)
	GetEndpoint(ctx context.Context, endpointARN string) (provider.EndpointAttributes, error)
	SetEndpointToken(ctx context.Context, endpointARN, token string) error
	DeleteEndpoint(ctx context.Context, endpointARN string) error
	ListEndpoints(ctx context.Context, platformARN string) ([]provider.Endpoint, error)
}

// CleanupStats summarizes one invalid-endpoint sweep.
type CleanupStats struct {
	Scanned int      `json:"scanned"`
	Removed []string `json:"removed"`
}

// RemovedCount returns the number of endpoints removed by the sweep.
func (s CleanupStats) RemovedCount() int { return len(s.Removed) }

// InvalidPercentage returns removed/scanned as a percentage. A sweep over an
// empty registry reports 0.
func (s CleanupStats) InvalidPercentage() float64 {
	if s.Scanned == 0 {
		return 0
	}
	return float64(len(s.Removed)) / float64(s.Scanned) * 100
}

// Manager implements the device-endpoint lifecycle. Validation errors fail
// fast and never reach the provider; provider calls run under the retry
// executor and the push-platform circuit breaker.
type Manager struct {
	store       EndpointStore
	exec        *resilience.Executor
	breaker     *resilience.Breaker
	retry       resilience.RetryPolicy
	platformARN string
	logger      types.Logger
	clock       types.Clock
}

// NewManager creates a device lifecycle manager for one platform application.
func NewManager(
	store EndpointStore,
	exec *resilience.Executor,
	breaker *resilience.Breaker,
	retry resilience.RetryPolicy,
	platformARN string,
	logger types.Logger,
) *Manager {
	return &Manager{
		store:       store,
		exec:        exec,
		breaker:     breaker,
		retry:       retry,
		platformARN: platformARN,
		logger:      logger,
		clock:       types.RealClock{},
	}
}

// SetClock overrides the clock for testing.
func (m *Manager) SetClock(c types.Clock) {
	m.clock = c
}

// call runs a provider operation under retry + circuit breaker.
func (m *Manager) call(ctx context.Context, operation string, op func(context.Context) error) error {
	return m.exec.Execute(ctx, operation, m.retry, nil, func(ctx context.Context) error {
		_, err := m.breaker.Execute(func() (any, error) {
			return nil, op(ctx)
		})
		return err
	})
}

// RegisterDevice validates the device token, creates (or re-resolves) the
// provider endpoint, and returns the resulting registration with Active=true.
// The provider makes creation idempotent per token: re-registering an
// existing token returns the existing endpoint rather than duplicating it.
func (m *Manager) RegisterDevice(ctx context.Context, token, userID string) (types.DeviceRegistration, error) {
	if !types.ValidDeviceToken(token) {
		return types.DeviceRegistration{}, types.NewAppError(types.ErrCodeValidationToken,
			"device token must be 64 hexadecimal characters", nil)
	}

	var endpointARN string
	err := m.call(ctx, "devices.RegisterDevice", func(ctx context.Context) error {
		arn, err := m.store.CreateEndpoint(ctx, m.platformARN, token, userID)
		if err != nil {
			return err
		}
		endpointARN = arn
		return nil
	})
	if err != nil {
		return types.DeviceRegistration{}, fmt.Errorf("register device: %w", err)
	}

	now := m.clock.Now()
	reg := types.DeviceRegistration{
		DeviceToken:  token,
		EndpointARN:  endpointARN,
		UserID:       userID,
		RegisteredAt: now,
		UpdatedAt:    now,
		Active:       true,
	}

	m.logger.Info("device registered",
		"endpoint_arn", endpointARN,
		"user_id", userID,
	)

	return reg, nil
}

// UpdateToken rotates the device token on an existing endpoint in place.
// The endpoint reference does not change.
func (m *Manager) UpdateToken(ctx context.Context, endpointARN, newToken string) error {
	if endpointARN == "" {
		return types.NewAppError(types.ErrCodeValidationMissing,
			"endpoint reference is required", nil)
	}
	if !types.ValidDeviceToken(newToken) {
		return types.NewAppError(types.ErrCodeValidationToken,
			"device token must be 64 hexadecimal characters", nil)
	}

	err := m.call(ctx, "devices.UpdateToken", func(ctx context.Context) error {
		return m.store.SetEndpointToken(ctx, endpointARN, newToken)
	})
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}

	m.logger.Info("device token rotated", "endpoint_arn", endpointARN)
	return nil
}

// RemoveInvalidTokens inspects each endpoint reference and deletes those that
// are disabled, carry a malformed token, or whose attributes cannot be
// fetched (endpoint presumed gone or broken). A fetch rejected by the open
// circuit breaker never ran, so the endpoint is skipped rather than presumed
// gone. Per-item failures are isolated: one broken endpoint never aborts the
// batch, and deletion failures of already-invalid endpoints are logged, not
// raised.
//
// Returns the references recorded as removed.
func (m *Manager) RemoveInvalidTokens(ctx context.Context, endpointRefs []string) []string {
	removed := make([]string, 0, len(endpointRefs))

	for _, ref := range endpointRefs {
		var attrs provider.EndpointAttributes
		fetchErr := m.call(ctx, "devices.GetEndpoint", func(ctx context.Context) error {
			a, err := m.store.GetEndpoint(ctx, ref)
			if err != nil {
				return err
			}
			attrs = a
			return nil
		})

		invalid := false
		switch {
		case types.IsCircuitOpen(fetchErr):
			// The breaker rejected the fetch before it ran, so nothing is
			// known about this endpoint. Leave it for the next sweep.
			m.logger.Warn("endpoint fetch rejected by open circuit, skipping",
				"endpoint_arn", ref,
			)
			continue
		case fetchErr != nil:
			m.logger.Warn("endpoint attributes unavailable, removing",
				"endpoint_arn", ref,
				"error", fetchErr.Error(),
			)
			invalid = true
		case !attrs.Enabled:
			m.logger.Info("endpoint disabled, removing", "endpoint_arn", ref)
			invalid = true
		case !types.ValidDeviceToken(attrs.Token):
			m.logger.Info("endpoint token malformed, removing", "endpoint_arn", ref)
			invalid = true
		}

		if !invalid {
			continue
		}

		if err := m.call(ctx, "devices.DeleteEndpoint", func(ctx context.Context) error {
			return m.store.DeleteEndpoint(ctx, ref)
		}); err != nil {
			// The endpoint is already invalid; a failed delete is not worth
			// aborting the batch over.
			m.logger.Warn("failed to delete invalid endpoint",
				"endpoint_arn", ref,
				"error", err.Error(),
			)
		}
		removed = append(removed, ref)
	}

	return removed
}

// SweepInvalidEndpoints lists every endpoint of the platform application and
// removes the invalid ones. This is the feedback/cleanup pass run by the
// health monitor.
func (m *Manager) SweepInvalidEndpoints(ctx context.Context) (CleanupStats, error) {
	var endpoints []provider.Endpoint
	err := m.call(ctx, "devices.ListEndpoints", func(ctx context.Context) error {
		eps, err := m.store.ListEndpoints(ctx, m.platformARN)
		if err != nil {
			return err
		}
		endpoints = eps
		return nil
	})
	if err != nil {
		return CleanupStats{}, fmt.Errorf("sweep endpoints: %w", err)
	}

	refs := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		refs = append(refs, ep.ARN)
	}

	stats := CleanupStats{
		Scanned: len(refs),
		Removed: m.RemoveInvalidTokens(ctx, refs),
	}

	if len(stats.Removed) > 0 {
		m.logger.Info("invalid endpoints removed",
			"scanned", stats.Scanned,
			"removed", len(stats.Removed),
		)
	}

	return stats, nil
}

// ValidateConfig exercises the platform application end to end by creating a
// throwaway endpoint with a well-formed dummy token and deleting it again.
// Returns nil only when both steps succeed.
func (m *Manager) ValidateConfig(ctx context.Context) error {
	var endpointARN string
	err := m.call(ctx, "devices.ValidateConfig.create", func(ctx context.Context) error {
		arn, err := m.store.CreateEndpoint(ctx, m.platformARN, validationToken, "config-validation")
		if err != nil {
			return err
		}
		endpointARN = arn
		return nil
	})
	if err != nil {
		return fmt.Errorf("validate config: create probe endpoint: %w", err)
	}

	err = m.call(ctx, "devices.ValidateConfig.delete", func(ctx context.Context) error {
		return m.store.DeleteEndpoint(ctx, endpointARN)
	})
	if err != nil {
		return fmt.Errorf("validate config: delete probe endpoint: %w", err)
	}

	return nil
}
