// Package config defines the configuration for the spendwatch alerting engine.
// Configuration is loaded once at process initialization (Lambda cold start)
// and is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved from the OS environment, with an optional .env file for
// local runs. Any missing required value or invalid format causes the load to
// fail immediately (fail fast).
package config

import (
	"time"
)

// Config is the top-level configuration struct for the alerting engine.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" default:"prod" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Retry    RetryConfig
	Breaker  BreakerConfig
	Notify   NotifyConfig
	Push     PushConfig
	Health   HealthConfig
	AWS      AWSConfig
}

// RetryConfig holds the retry/backoff policy applied to provider calls.
type RetryConfig struct {
	MaxAttempts   int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3" validate:"min=1"`
	BaseDelay     time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	MaxDelay      time.Duration `envconfig:"RETRY_MAX_DELAY" default:"30s"`
	BackoffFactor float64       `envconfig:"RETRY_BACKOFF_FACTOR" default:"2.0" validate:"gte=1"`
	Jitter        bool          `envconfig:"RETRY_JITTER" default:"true"`
}

// BreakerConfig holds the circuit breaker policy shared by all dependency
// breakers.
type BreakerConfig struct {
	FailureThreshold int           `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5" validate:"min=1"`
	RecoveryTimeout  time.Duration `envconfig:"BREAKER_RECOVERY_TIMEOUT" default:"60s"`
	HalfOpenMaxCalls uint32        `envconfig:"BREAKER_HALF_OPEN_MAX_CALLS" default:"1" validate:"min=1"`
}

// NotifyConfig identifies the pub/sub alert topic and the dead-letter queue
// for terminally failed alerts.
type NotifyConfig struct {
	TopicARN string `envconfig:"ALERT_TOPIC_ARN" validate:"required"`
	DLQURL   string `envconfig:"ALERT_DLQ_URL"`
}

// PushConfig identifies the mobile push platform application. An empty
// PlatformApplicationARN disables the push channel entirely; alerts then go
// out over the bulk-text channels only.
type PushConfig struct {
	PlatformApplicationARN string `envconfig:"PUSH_PLATFORM_ARN"`
	BundleID               string `envconfig:"PUSH_BUNDLE_ID" default:"io.spendwatch.app"`
	Sandbox                bool   `envconfig:"PUSH_SANDBOX" default:"false"`

	// CredentialExpiresAt is the expiration instant of the push signing
	// credential (APNS certificate/key), fed to the credential health probe.
	// Zero disables expiry checking.
	CredentialExpiresAt time.Time `envconfig:"PUSH_CREDENTIAL_EXPIRES_AT"`
}

// Enabled reports whether the push channel is configured.
func (p PushConfig) Enabled() bool {
	return p.PlatformApplicationARN != ""
}

// HealthConfig tunes the health monitor and the local ops listener.
type HealthConfig struct {
	ProbeTimeout time.Duration `envconfig:"HEALTH_PROBE_TIMEOUT" default:"10s"`
	Port         string        `envconfig:"HEALTH_PORT" default:"8080"`
}

// AWSConfig holds regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}
