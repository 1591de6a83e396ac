// Package health implements the system health monitor: three concurrent
// probes over the push platform (configuration validity, credential health,
// endpoint hygiene), severity-max aggregation into a tri-state report, and
// automated recovery actions driven by that report.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spendwatch/internal/devices"
	"spendwatch/internal/metrics"
	"spendwatch/internal/types"
)

// Component names as they appear in health reports.
const (
	ComponentPlatformConfig  = "platform-config"
	ComponentPushCredential  = "push-credential"
	ComponentDeviceEndpoints = "device-endpoints"
)

// Endpoint invalid-percentage thresholds for the cleanup probe.
const (
	endpointCriticalPercent = 50.0
	endpointWarningPercent  = 20.0
	endpointRecoveryPercent = 10.0
)

// DeviceProber is the device-lifecycle surface the monitor needs.
// Implemented by devices.Manager.
type DeviceProber interface {
	ValidateConfig(ctx context.Context) error
	SweepInvalidEndpoints(ctx context.Context) (devices.CleanupStats, error)
}

// BreakerAdmin exposes the circuit-breaker registry surface used by
// automated recovery. Implemented by resilience.Registry.
type BreakerAdmin interface {
	ResetUnhealthy() []string
}

// Monitor runs the health probes and produces aggregated reports.
type Monitor struct {
	devices      DeviceProber
	credentials  CredentialChecker
	breakers     BreakerAdmin
	probeTimeout time.Duration
	logger       types.Logger
	observer     metrics.Observer
	clock        types.Clock
}

// NewMonitor creates a monitor over the given collaborators. breakers may be
// nil when no registry is in play; probeTimeout bounds each probe.
func NewMonitor(
	prober DeviceProber,
	credentials CredentialChecker,
	breakers BreakerAdmin,
	probeTimeout time.Duration,
	logger types.Logger,
	observer metrics.Observer,
) *Monitor {
	return &Monitor{
		devices:      prober,
		credentials:  credentials,
		breakers:     breakers,
		probeTimeout: probeTimeout,
		logger:       logger,
		observer:     observer,
		clock:        types.RealClock{},
	}
}

// SetClock overrides the clock for testing.
func (m *Monitor) SetClock(c types.Clock) {
	m.clock = c
}

// Check runs the three probes concurrently and waits for all of them. A
// failing or panicking probe is reported as its own critical component and
// never prevents the others from completing.
func (m *Monitor) Check(ctx context.Context) types.HealthReport {
	start := time.Now()

	probes := []struct {
		name string
		run  func(context.Context) types.ComponentHealth
	}{
		{ComponentPlatformConfig, m.probePlatformConfig},
		{ComponentPushCredential, m.probeCredential},
		{ComponentDeviceEndpoints, m.probeEndpoints},
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		components = make(map[string]types.ComponentHealth, len(probes))
	)

	for _, probe := range probes {
		wg.Add(1)
		go func(name string, run func(context.Context) types.ComponentHealth) {
			defer wg.Done()

			probeCtx := ctx
			if m.probeTimeout > 0 {
				var cancel context.CancelFunc
				probeCtx, cancel = context.WithTimeout(ctx, m.probeTimeout)
				defer cancel()
			}

			probeStart := time.Now()
			result := m.safeProbe(probeCtx, name, run)
			result.Duration = types.Duration(time.Since(probeStart))

			mu.Lock()
			components[name] = result
			mu.Unlock()

			m.observer.ObserveOperation(ctx, "health.probe."+name,
				time.Since(probeStart), result.Status != types.StatusCritical)
		}(probe.name, probe.run)
	}
	wg.Wait()

	overall := types.StatusHealthy
	probeDurations := make(map[string]types.Duration, len(components))
	for name, component := range components {
		overall = types.MaxStatus(overall, component.Status)
		probeDurations[name] = component.Duration
	}

	report := types.HealthReport{
		Overall:         overall,
		Components:      components,
		Recommendations: recommendations(components),
		Metrics: types.ReportMetrics{
			TotalDuration: types.Duration(time.Since(start)),
			ProbeDuration: probeDurations,
		},
		GeneratedAt: m.clock.Now(),
	}

	m.logger.Info("health check completed",
		"overall", string(report.Overall),
		"duration", time.Since(start).String(),
	)

	return report
}

// safeProbe runs one probe with panic recovery. A panic becomes a critical
// component result instead of taking down the whole check.
func (m *Monitor) safeProbe(ctx context.Context, name string, run func(context.Context) types.ComponentHealth) (result types.ComponentHealth) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("health probe panicked",
				"probe", name,
				"panic", fmt.Sprintf("%v", r),
			)
			result = types.ComponentHealth{
				Status:  types.StatusCritical,
				Message: "probe panicked",
				Errors:  []string{fmt.Sprintf("panic: %v", r)},
			}
		}
	}()
	return run(ctx)
}

// probePlatformConfig exercises the push platform application end to end.
func (m *Monitor) probePlatformConfig(ctx context.Context) types.ComponentHealth {
	if err := m.devices.ValidateConfig(ctx); err != nil {
		return types.ComponentHealth{
			Status:  types.StatusCritical,
			Message: "platform configuration validation failed",
			Errors:  []string{err.Error()},
		}
	}
	return types.ComponentHealth{
		Status:  types.StatusHealthy,
		Message: "platform configuration valid",
	}
}

// probeCredential classifies the push credential: errors are critical,
// warnings alone degrade to warning.
func (m *Monitor) probeCredential(ctx context.Context) types.ComponentHealth {
	status := m.credentials.Check(ctx)

	component := types.ComponentHealth{
		Status:   types.StatusHealthy,
		Message:  "push credential valid",
		Warnings: status.Warnings,
		Errors:   status.Errors,
		Details: map[string]any{
			"days_until_expiration": status.DaysUntilExpiration,
		},
	}
	switch {
	case len(status.Errors) > 0:
		component.Status = types.StatusCritical
		component.Message = "push credential invalid"
	case len(status.Warnings) > 0:
		component.Status = types.StatusWarning
		component.Message = "push credential nearing expiry"
	}
	return component
}

// probeEndpoints sweeps invalid endpoints off the platform application and
// classifies the registry by the share it had to remove.
func (m *Monitor) probeEndpoints(ctx context.Context) types.ComponentHealth {
	stats, err := m.devices.SweepInvalidEndpoints(ctx)
	if err != nil {
		return types.ComponentHealth{
			Status:  types.StatusCritical,
			Message: "endpoint sweep failed",
			Errors:  []string{err.Error()},
		}
	}

	invalidPct := stats.InvalidPercentage()
	component := types.ComponentHealth{
		Status:  types.StatusHealthy,
		Message: fmt.Sprintf("%d of %d endpoints removed", stats.RemovedCount(), stats.Scanned),
		Details: map[string]any{
			"scanned":            stats.Scanned,
			"removed":            stats.RemovedCount(),
			"invalid_percentage": invalidPct,
		},
	}
	switch {
	case invalidPct > endpointCriticalPercent:
		component.Status = types.StatusCritical
	case invalidPct > endpointWarningPercent:
		component.Status = types.StatusWarning
	}
	return component
}

// recommendations derives operator guidance from the component statuses.
// Output order is stable: platform config, credential, endpoints.
func recommendations(components map[string]types.ComponentHealth) []string {
	var recs []string

	if c, ok := components[ComponentPlatformConfig]; ok && c.Status == types.StatusCritical {
		recs = append(recs, "verify the push platform application configuration and its provider credentials")
	}

	if c, ok := components[ComponentPushCredential]; ok {
		switch c.Status {
		case types.StatusCritical:
			recs = append(recs, "renew the push signing credential immediately")
		case types.StatusWarning:
			recs = append(recs, "schedule renewal of the push signing credential")
		}
	}

	if c, ok := components[ComponentDeviceEndpoints]; ok {
		switch c.Status {
		case types.StatusCritical:
			recs = append(recs, "investigate app distribution: most registered endpoints are invalid")
		case types.StatusWarning:
			recs = append(recs, "monitor the endpoint invalidation rate")
		}
	}

	return recs
}
