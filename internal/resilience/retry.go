// Package resilience provides the failure-handling primitives every outbound
// provider call goes through: a retry executor with exponential backoff and
// jitter, and per-dependency circuit breakers built on sony/gobreaker.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"spendwatch/internal/config"
	"spendwatch/internal/metrics"
	"spendwatch/internal/types"
)

// jitterPercent is the jitter applied to computed backoff delays: ±25%.
const jitterPercent = 0.25

// RetryPolicy is the immutable retry/backoff configuration for an executor
// call. Constructed once and shared freely.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// PolicyFromConfig maps the loaded configuration onto a RetryPolicy.
func PolicyFromConfig(c config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   c.MaxAttempts,
		BaseDelay:     c.BaseDelay,
		MaxDelay:      c.MaxDelay,
		BackoffFactor: c.BackoffFactor,
		Jitter:        c.Jitter,
	}
}

// Validate checks the policy invariants: at least one attempt and
// BaseDelay <= MaxDelay.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return types.NewAppError(types.ErrCodeConfigInvalid,
			"retry policy requires at least one attempt", nil)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 || p.BaseDelay > p.MaxDelay {
		return types.NewAppError(types.ErrCodeConfigInvalid,
			"retry policy delays invalid: need 0 <= base <= max", nil)
	}
	if p.BackoffFactor < 1 {
		return types.NewAppError(types.ErrCodeConfigInvalid,
			"retry policy backoff factor must be >= 1", nil)
	}
	return nil
}

// Backoff computes the pre-jitter delay after the given failed attempt
// (1-based): min(BaseDelay * BackoffFactor^(attempt-1), MaxDelay).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	maxDelay := float64(p.MaxDelay)
	if delay > maxDelay || delay < 0 {
		// The negative branch guards against float overflow.
		delay = maxDelay
	}

	return time.Duration(delay)
}

// Classifier decides whether an error is worth retrying. A nil Classifier
// defaults to types.IsRetryable.
type Classifier func(error) bool

// Executor runs operations under a retry policy. One Execute call is fully
// self-contained given a policy; the executor itself holds no per-call state
// and is safe for concurrent use.
type Executor struct {
	logger   types.Logger
	observer metrics.Observer
	sleep    func(time.Duration)
	randFn   func() float64
}

// ExecutorOption is a functional option for configuring an Executor.
type ExecutorOption func(*Executor)

// WithSleepFunc overrides the sleep function used between attempts.
// This is intended for testing to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) ExecutorOption {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// WithRandFunc overrides the uniform random source used for jitter.
func WithRandFunc(fn func() float64) ExecutorOption {
	return func(e *Executor) {
		e.randFn = fn
	}
}

// NewExecutor creates an Executor reporting attempts to the given logger and
// observer.
func NewExecutor(logger types.Logger, observer metrics.Observer, opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:   logger,
		observer: observer,
		sleep:    time.Sleep,
		randFn:   rand.Float64,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute runs op up to policy.MaxAttempts times. After each failure the
// error is classified; terminal errors and exhausted attempts propagate the
// last error unmodified, with no trailing delay. Between attempts the
// executor suspends for the policy backoff, jittered ±25% when enabled.
//
// Every attempt is reported to the observer as a named duration plus
// success/failure, and to the logger.
func (e *Executor) Execute(ctx context.Context, operationName string, policy RetryPolicy, classify Classifier, op func(context.Context) error) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	if classify == nil {
		classify = types.IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		start := time.Now()
		err := op(ctx)
		e.observer.ObserveOperation(ctx, operationName, time.Since(start), err == nil)

		if err == nil {
			if attempt > 1 {
				e.logger.Info("operation succeeded after retry",
					"operation", operationName,
					"attempt", attempt,
				)
			}
			return nil
		}
		lastErr = err

		if !classify(err) {
			e.logger.Warn("operation failed with terminal error",
				"operation", operationName,
				"attempt", attempt,
				"error", err.Error(),
			)
			return err
		}

		if attempt == policy.MaxAttempts {
			break
		}

		delay := e.jittered(policy, attempt)
		e.logger.Warn("operation failed, backing off",
			"operation", operationName,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"delay", delay.String(),
			"error", err.Error(),
		)
		e.observer.Count(ctx, types.MetricRetryAttempt, types.DimOperation, operationName)
		e.sleep(delay)
	}

	e.logger.Error("operation failed, retries exhausted",
		"operation", operationName,
		"attempts", policy.MaxAttempts,
		"error", lastErr.Error(),
	)

	return lastErr
}

// jittered applies ±25% uniform jitter to the policy backoff when enabled,
// floored at zero.
func (e *Executor) jittered(policy RetryPolicy, attempt int) time.Duration {
	delay := policy.Backoff(attempt)
	if !policy.Jitter || delay <= 0 {
		return delay
	}

	// Uniform in [-25%, +25%].
	factor := 1 + jitterPercent*(2*e.randFn()-1)
	jittered := time.Duration(float64(delay) * factor)
	if jittered < 0 {
		return 0
	}
	return jittered
}
