// Package alerts formats and dispatches one logical spend alert to every
// configured notification channel, falling back to a degraded channel set
// when the push-specific portion of a delivery fails.
package alerts

import (
	"sort"

	"github.com/google/uuid"

	"spendwatch/internal/types"
)

// BuildContext constructs the read-only AlertContext for one threshold
// breach. serviceCosts maps service name to its spend contribution; only the
// top five services by cost are retained, ordered by cost descending with
// ties broken by name ascending for determinism.
func BuildContext(threshold, observed float64, serviceCosts map[string]float64, clock types.Clock) (types.AlertContext, error) {
	if threshold <= 0 {
		return types.AlertContext{}, types.NewAppError(types.ErrCodeValidationMissing,
			"threshold must be positive", nil)
	}
	if observed <= threshold {
		return types.AlertContext{}, types.NewAppError(types.ErrCodeValidationMissing,
			"observed spend does not exceed the threshold", nil)
	}
	if clock == nil {
		clock = types.RealClock{}
	}

	exceed := observed - threshold
	percentOver := exceed / threshold * 100

	severity := types.SeverityWarning
	if percentOver > types.CriticalOveragePercent {
		severity = types.SeverityCritical
	}

	return types.AlertContext{
		AlertID:        uuid.NewString(),
		Threshold:      threshold,
		ObservedSpend:  observed,
		ExceedAmount:   exceed,
		PercentageOver: percentOver,
		TopServices:    rankServices(serviceCosts, observed),
		Severity:       severity,
		DetectedAt:     clock.Now(),
	}, nil
}

// rankServices orders services by cost descending, name ascending on ties,
// and keeps at most types.MaxTopServices entries.
func rankServices(serviceCosts map[string]float64, observed float64) []types.ServiceCost {
	ranked := make([]types.ServiceCost, 0, len(serviceCosts))
	for name, cost := range serviceCosts {
		entry := types.ServiceCost{Name: name, Cost: cost}
		if observed > 0 {
			entry.Percentage = cost / observed * 100
		}
		ranked = append(ranked, entry)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Cost != ranked[j].Cost {
			return ranked[i].Cost > ranked[j].Cost
		}
		return ranked[i].Name < ranked[j].Name
	})

	if len(ranked) > types.MaxTopServices {
		ranked = ranked[:types.MaxTopServices]
	}
	return ranked
}
