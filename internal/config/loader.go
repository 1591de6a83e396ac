// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load a .env file via godotenv (non-fatal if absent, never overrides
//     existing environment variables).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator plus cross-field
//     rules that tags cannot express.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"spendwatch/internal/types"
)

// Load loads and validates the engine configuration from the environment.
// It fails fast: any missing required value or invalid combination returns a
// configuration_invalid AppError and the process should exit.
func Load() (*Config, error) {
	// Enforce UTC to prevent drift bugs in timestamps and backoff math.
	time.Local = time.UTC

	// Non-fatal if no .env file exists; does not override the environment.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid,
			"failed to process environment configuration", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags and cross-field invariants. Exposed separately
// so tests can validate hand-built configs.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return types.NewAppError(types.ErrCodeConfigInvalid,
			"configuration failed validation", err)
	}

	// Cross-field invariants the tag language cannot express.
	if cfg.Retry.BaseDelay > cfg.Retry.MaxDelay {
		return types.NewAppError(types.ErrCodeConfigInvalid,
			"RETRY_BASE_DELAY must not exceed RETRY_MAX_DELAY", nil)
	}
	if cfg.Retry.BaseDelay < 0 || cfg.Retry.MaxDelay < 0 {
		return types.NewAppError(types.ErrCodeConfigInvalid,
			"retry delays must be non-negative", nil)
	}
	if cfg.Breaker.RecoveryTimeout <= 0 {
		return types.NewAppError(types.ErrCodeConfigInvalid,
			"BREAKER_RECOVERY_TIMEOUT must be positive", nil)
	}

	return nil
}
