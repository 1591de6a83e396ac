// Package types defines the shared domain model for the spendwatch alerting
// engine: tagged error values, alert and device entities, health report
// structures, and the small cross-cutting interfaces (Logger, Clock).
//
// The package has no dependencies on provider SDKs so that every other
// package can import it without pulling in AWS types.
package types

import (
	"regexp"
	"strconv"
	"time"
)

// Severity classifies how far over threshold a breach landed.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// CriticalOveragePercent is the percentage-over-threshold above which a
// breach is classified CRITICAL rather than WARNING.
const CriticalOveragePercent = 50.0

// MaxTopServices bounds the number of per-service cost entries carried in an
// AlertContext. Push payload size limits leave no room for a longer list.
const MaxTopServices = 5

// ServiceCost is one service's contribution to the observed spend.
type ServiceCost struct {
	Name       string  `json:"name"`
	Cost       float64 `json:"cost"`
	Percentage float64 `json:"percentage"`
}

// AlertContext captures one threshold-breach event. It is constructed once
// per detection and read-only thereafter.
type AlertContext struct {
	AlertID        string        `json:"alert_id"`
	Threshold      float64       `json:"threshold"`
	ObservedSpend  float64       `json:"observed_spend"`
	ExceedAmount   float64       `json:"exceed_amount"`
	PercentageOver float64       `json:"percentage_over"`
	TopServices    []ServiceCost `json:"top_services"`
	Severity       Severity      `json:"severity"`
	DetectedAt     time.Time     `json:"detected_at"`
}

// DeviceRegistration describes one push-notification endpoint held by the
// provider. The provider's endpoint store owns the record; this struct is a
// snapshot, never a duplicate source of truth.
type DeviceRegistration struct {
	DeviceToken  string    `json:"device_token"`
	EndpointARN  string    `json:"endpoint_arn"`
	UserID       string    `json:"user_id,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Active       bool      `json:"active"`
}

// deviceTokenPattern matches a well-formed APNS device token: exactly 64
// case-insensitive hex characters.
var deviceTokenPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ValidDeviceToken reports whether token is a well-formed 64-hex device token.
// Anything else must never reach the provider.
func ValidDeviceToken(token string) bool {
	return deviceTokenPattern.MatchString(token)
}

// Status is the tri-state health classification used per component and
// overall.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// rank orders statuses by severity for the severity-max aggregation rule.
func (s Status) rank() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// MaxStatus returns the more severe of two statuses (critical > warning >
// healthy).
func MaxStatus(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// ComponentHealth is the probe outcome for one dependency. Details carries
// probe-specific figures (counts, percentages) for report consumers and the
// automated-recovery step.
type ComponentHealth struct {
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Duration Duration       `json:"duration"`
}

// ReportMetrics carries per-probe and total durations for a health check.
type ReportMetrics struct {
	TotalDuration Duration            `json:"total_duration"`
	ProbeDuration map[string]Duration `json:"probe_duration,omitempty"`
}

// HealthReport is the aggregated, immutable outcome of one health-check
// invocation.
type HealthReport struct {
	Overall         Status                     `json:"overall"`
	Components      map[string]ComponentHealth `json:"components"`
	Recommendations []string                   `json:"recommendations,omitempty"`
	Metrics         ReportMetrics              `json:"metrics"`
	GeneratedAt     time.Time                  `json:"generated_at"`
}

// Duration is a time.Duration that marshals as milliseconds for report
// consumers.
type Duration time.Duration

// MarshalJSON renders the duration as integer milliseconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(time.Duration(d).Milliseconds(), 10)), nil
}
