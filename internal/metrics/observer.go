// Package metrics emits operational telemetry for the alerting engine.
// The exact metric names and namespace live in internal/types/telemetry.go;
// components report through the narrow Observer interface so the CloudWatch
// dependency stays at the edge.
package metrics

import (
	"context"
	"time"
)

// Observer receives a named duration + success/failure observation for every
// operation the engine performs against an external dependency.
type Observer interface {
	// ObserveOperation records one attempt of the named operation.
	ObserveOperation(ctx context.Context, operation string, duration time.Duration, success bool)

	// Count records a unit occurrence of the named metric with an optional
	// dimension value (empty string omits the dimension).
	Count(ctx context.Context, metric string, dimension string, value string)
}

// Nop discards all observations. Useful as a default and in tests.
type Nop struct{}

func (Nop) ObserveOperation(context.Context, string, time.Duration, bool) {}
func (Nop) Count(context.Context, string, string, string)                {}
