package health

import (
	"context"
	"fmt"
	"time"

	"spendwatch/internal/config"
	"spendwatch/internal/types"
)

// renewalWarningWindow is how far ahead of credential expiry the checker
// starts warning.
const renewalWarningWindow = 30 * 24 * time.Hour

// CredentialStatus is the outcome of one push-credential inspection.
type CredentialStatus struct {
	Valid               bool
	DaysUntilExpiration int
	Warnings            []string
	Errors              []string
}

// CredentialChecker inspects the push signing credential. Implementations
// must not panic; the monitor treats a returned error list as critical.
type CredentialChecker interface {
	Check(ctx context.Context) CredentialStatus
}

// ExpiryChecker validates the push credential purely from its configured
// expiration instant. A zero instant disables expiry tracking and always
// reports valid.
type ExpiryChecker struct {
	push  config.PushConfig
	clock types.Clock
}

// NewExpiryChecker creates a checker over the push configuration.
func NewExpiryChecker(push config.PushConfig, clock types.Clock) *ExpiryChecker {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &ExpiryChecker{push: push, clock: clock}
}

// Check reports credential validity and time until expiration. Expired
// credentials produce an error; credentials inside the renewal window
// produce a warning.
func (c *ExpiryChecker) Check(_ context.Context) CredentialStatus {
	if !c.push.Enabled() || c.push.CredentialExpiresAt.IsZero() {
		return CredentialStatus{Valid: true}
	}

	remaining := c.push.CredentialExpiresAt.Sub(c.clock.Now())
	days := int(remaining.Hours() / 24)

	status := CredentialStatus{
		Valid:               remaining > 0,
		DaysUntilExpiration: days,
	}

	switch {
	case remaining <= 0:
		status.Errors = append(status.Errors,
			fmt.Sprintf("push credential expired %d days ago", -days))
	case remaining < renewalWarningWindow:
		status.Warnings = append(status.Warnings,
			fmt.Sprintf("push credential expires in %d days", days))
	}

	return status
}
