package health

import (
	"context"
	"fmt"

	"spendwatch/internal/types"
)

// RecoveryResult summarizes one automated-recovery run.
type RecoveryResult struct {
	ActionsPerformed []string `json:"actions_performed"`
	Success          bool     `json:"success"`
	Errors           []string `json:"errors,omitempty"`
}

// PerformAutomatedRecovery reacts to a health report: sweeps the endpoint
// registry again when the reported invalid share exceeds the recovery
// threshold, re-validates platform configuration when that component was
// unhealthy, and resets any open circuit breakers. The report only selects
// which actions to attempt; every action works against current state, so a
// stale report at worst triggers a redundant pass.
func (m *Monitor) PerformAutomatedRecovery(ctx context.Context, report types.HealthReport) RecoveryResult {
	result := RecoveryResult{}

	if reportedInvalidPercentage(report) > endpointRecoveryPercent {
		stats, err := m.devices.SweepInvalidEndpoints(ctx)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("endpoint sweep: %v", err))
		} else {
			result.ActionsPerformed = append(result.ActionsPerformed,
				fmt.Sprintf("removed %d invalid endpoints (%d scanned)",
					stats.RemovedCount(), stats.Scanned))
		}
	}

	if component, ok := report.Components[ComponentPlatformConfig]; ok &&
		component.Status != types.StatusHealthy {
		if err := m.devices.ValidateConfig(ctx); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("platform config validation: %v", err))
		} else {
			result.ActionsPerformed = append(result.ActionsPerformed,
				"platform configuration re-validated")
		}
	}

	if m.breakers != nil {
		for _, name := range m.breakers.ResetUnhealthy() {
			result.ActionsPerformed = append(result.ActionsPerformed,
				fmt.Sprintf("reset circuit breaker %q", name))
		}
	}

	result.Success = len(result.Errors) == 0

	m.logger.Info("automated recovery completed",
		"actions", len(result.ActionsPerformed),
		"errors", len(result.Errors),
		"success", result.Success,
	)

	return result
}

// reportedInvalidPercentage extracts the invalid-endpoint share recorded by
// the cleanup probe, or 0 when absent.
func reportedInvalidPercentage(report types.HealthReport) float64 {
	component, ok := report.Components[ComponentDeviceEndpoints]
	if !ok {
		return 0
	}
	pct, _ := component.Details["invalid_percentage"].(float64)
	return pct
}
