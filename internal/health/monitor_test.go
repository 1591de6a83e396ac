package health

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"spendwatch/internal/config"
	"spendwatch/internal/devices"
	"spendwatch/internal/metrics"
	"spendwatch/internal/types"
)

type fakeProber struct {
	validateErr   error
	validateCalls int
	sweepStats    devices.CleanupStats
	sweepErr      error
	sweepCalls    int
	panicOnSweep  bool
}

func (f *fakeProber) ValidateConfig(context.Context) error {
	f.validateCalls++
	return f.validateErr
}

func (f *fakeProber) SweepInvalidEndpoints(context.Context) (devices.CleanupStats, error) {
	f.sweepCalls++
	if f.panicOnSweep {
		panic("store exploded")
	}
	return f.sweepStats, f.sweepErr
}

type fakeCredentials struct {
	status CredentialStatus
}

func (f *fakeCredentials) Check(context.Context) CredentialStatus {
	return f.status
}

type fakeBreakers struct {
	reset []string
}

func (f *fakeBreakers) ResetUnhealthy() []string { return f.reset }

func sweepOf(scanned, removed int) devices.CleanupStats {
	refs := make([]string, removed)
	for i := range refs {
		refs[i] = "arn:endpoint"
	}
	return devices.CleanupStats{Scanned: scanned, Removed: refs}
}

func newTestMonitor(prober *fakeProber, creds CredentialChecker, breakers BreakerAdmin) *Monitor {
	if creds == nil {
		creds = &fakeCredentials{status: CredentialStatus{Valid: true}}
	}
	return NewMonitor(prober, creds, breakers, time.Second, types.NopLogger{}, metrics.Nop{})
}

func TestCheckAllHealthy(t *testing.T) {
	prober := &fakeProber{sweepStats: sweepOf(100, 5)}
	m := newTestMonitor(prober, nil, nil)

	report := m.Check(context.Background())

	if report.Overall != types.StatusHealthy {
		t.Fatalf("overall = %s, want healthy", report.Overall)
	}
	if len(report.Components) != 3 {
		t.Fatalf("components = %d, want 3", len(report.Components))
	}
	if len(report.Recommendations) != 0 {
		t.Errorf("healthy report carries recommendations: %v", report.Recommendations)
	}
	if report.Metrics.ProbeDuration[ComponentDeviceEndpoints] < 0 {
		t.Error("missing probe duration")
	}
}

// componentStatuses forces each probe to a chosen status and returns the
// report. Used to exercise the severity-max rule across the full matrix.
func reportWithStatuses(t *testing.T, platform, credential, endpoints types.Status) types.HealthReport {
	t.Helper()

	prober := &fakeProber{}
	if platform == types.StatusCritical {
		prober.validateErr = errors.New("platform broken")
	} else if platform == types.StatusWarning {
		t.Fatal("platform probe has no warning state")
	}

	switch endpoints {
	case types.StatusHealthy:
		prober.sweepStats = sweepOf(100, 5)
	case types.StatusWarning:
		prober.sweepStats = sweepOf(100, 30)
	case types.StatusCritical:
		prober.sweepStats = sweepOf(100, 60)
	}

	creds := &fakeCredentials{status: CredentialStatus{Valid: true}}
	switch credential {
	case types.StatusWarning:
		creds.status.Warnings = []string{"expires soon"}
	case types.StatusCritical:
		creds.status = CredentialStatus{Errors: []string{"expired"}}
	}

	return newTestMonitor(prober, creds, nil).Check(context.Background())
}

func TestCheckSeverityMaxAggregation(t *testing.T) {
	// The platform probe is binary (healthy/critical); credential and
	// endpoint probes cover all three states.
	platformStates := []types.Status{types.StatusHealthy, types.StatusCritical}
	triState := []types.Status{types.StatusHealthy, types.StatusWarning, types.StatusCritical}

	for _, platform := range platformStates {
		for _, credential := range triState {
			for _, endpoints := range triState {
				report := reportWithStatuses(t, platform, credential, endpoints)

				want := types.MaxStatus(platform, types.MaxStatus(credential, endpoints))
				if report.Overall != want {
					t.Errorf("platform=%s credential=%s endpoints=%s: overall = %s, want %s",
						platform, credential, endpoints, report.Overall, want)
				}

				if got := report.Components[ComponentPushCredential].Status; got != credential {
					t.Errorf("credential component = %s, want %s", got, credential)
				}
				if got := report.Components[ComponentDeviceEndpoints].Status; got != endpoints {
					t.Errorf("endpoints component = %s, want %s", got, endpoints)
				}
			}
		}
	}
}

func TestCheckProbeIsolationOnPanic(t *testing.T) {
	prober := &fakeProber{panicOnSweep: true}
	m := newTestMonitor(prober, nil, nil)

	report := m.Check(context.Background())

	endpoints := report.Components[ComponentDeviceEndpoints]
	if endpoints.Status != types.StatusCritical {
		t.Errorf("panicking probe status = %s, want critical", endpoints.Status)
	}
	if len(endpoints.Errors) == 0 || !strings.Contains(endpoints.Errors[0], "store exploded") {
		t.Errorf("panic detail missing: %v", endpoints.Errors)
	}

	// The other two probes still completed and report healthy.
	if got := report.Components[ComponentPlatformConfig].Status; got != types.StatusHealthy {
		t.Errorf("platform component = %s, want healthy", got)
	}
	if got := report.Components[ComponentPushCredential].Status; got != types.StatusHealthy {
		t.Errorf("credential component = %s, want healthy", got)
	}
	if report.Overall != types.StatusCritical {
		t.Errorf("overall = %s, want critical", report.Overall)
	}
}

func TestCheckSweepFailureIsCritical(t *testing.T) {
	prober := &fakeProber{sweepErr: errors.New("list failed")}
	report := newTestMonitor(prober, nil, nil).Check(context.Background())

	if got := report.Components[ComponentDeviceEndpoints].Status; got != types.StatusCritical {
		t.Errorf("sweep failure status = %s, want critical", got)
	}
}

func TestCheckEndpointThresholds(t *testing.T) {
	tests := []struct {
		name    string
		scanned int
		removed int
		want    types.Status
	}{
		{"clean registry", 100, 0, types.StatusHealthy},
		{"at warning boundary", 100, 20, types.StatusHealthy},
		{"above warning", 100, 21, types.StatusWarning},
		{"at critical boundary", 100, 50, types.StatusWarning},
		{"above critical", 100, 51, types.StatusCritical},
		{"empty registry", 0, 0, types.StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &fakeProber{sweepStats: sweepOf(tt.scanned, tt.removed)}
			report := newTestMonitor(prober, nil, nil).Check(context.Background())
			if got := report.Components[ComponentDeviceEndpoints].Status; got != tt.want {
				t.Errorf("%d/%d removed: status = %s, want %s",
					tt.removed, tt.scanned, got, tt.want)
			}
		})
	}
}

func TestCheckRecommendationsDeterministic(t *testing.T) {
	report := reportWithStatuses(t, types.StatusCritical, types.StatusCritical, types.StatusCritical)

	want := []string{
		"verify the push platform application configuration and its provider credentials",
		"renew the push signing credential immediately",
		"investigate app distribution: most registered endpoints are invalid",
	}
	if len(report.Recommendations) != len(want) {
		t.Fatalf("recommendations = %v", report.Recommendations)
	}
	for i := range want {
		if report.Recommendations[i] != want[i] {
			t.Errorf("recommendation[%d] = %q, want %q", i, report.Recommendations[i], want[i])
		}
	}

	// Re-running yields the identical ordering.
	again := reportWithStatuses(t, types.StatusCritical, types.StatusCritical, types.StatusCritical)
	for i := range want {
		if again.Recommendations[i] != report.Recommendations[i] {
			t.Fatal("recommendation order is not stable")
		}
	}
}

func TestExpiryCheckerStates(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := fixedClock{now: now}

	tests := []struct {
		name      string
		expiresAt time.Time
		valid     bool
		warnings  int
		errors    int
	}{
		{"far from expiry", now.Add(90 * 24 * time.Hour), true, 0, 0},
		{"inside renewal window", now.Add(10 * 24 * time.Hour), true, 1, 0},
		{"expired", now.Add(-5 * 24 * time.Hour), false, 0, 1},
		{"no expiry configured", time.Time{}, true, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewExpiryChecker(config.PushConfig{
				PlatformApplicationARN: "arn:app",
				CredentialExpiresAt:    tt.expiresAt,
			}, clock)

			status := checker.Check(context.Background())
			if status.Valid != tt.valid {
				t.Errorf("valid = %v, want %v", status.Valid, tt.valid)
			}
			if len(status.Warnings) != tt.warnings {
				t.Errorf("warnings = %v", status.Warnings)
			}
			if len(status.Errors) != tt.errors {
				t.Errorf("errors = %v", status.Errors)
			}
		})
	}
}

func TestExpiryCheckerPushDisabled(t *testing.T) {
	checker := NewExpiryChecker(config.PushConfig{
		CredentialExpiresAt: time.Now().Add(-time.Hour),
	}, nil)

	status := checker.Check(context.Background())
	if !status.Valid || len(status.Errors) != 0 {
		t.Error("disabled push channel must not report credential problems")
	}
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }
