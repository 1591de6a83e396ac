package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"spendwatch/internal/config"
	"spendwatch/internal/types"
)

// BreakerPolicy configures a circuit breaker protecting one named dependency.
type BreakerPolicy struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls uint32
}

// BreakerPolicyFromConfig maps the loaded configuration onto a BreakerPolicy.
func BreakerPolicyFromConfig(c config.BreakerConfig) BreakerPolicy {
	return BreakerPolicy{
		FailureThreshold: c.FailureThreshold,
		RecoveryTimeout:  c.RecoveryTimeout,
		HalfOpenMaxCalls: c.HalfOpenMaxCalls,
	}
}

// Breaker wraps one named external dependency with a circuit breaker. State
// is process-wide and lives for the process lifetime; it is never persisted
// across cold starts. Safe for concurrent use.
//
// The engine is sony/gobreaker: CLOSED trips to OPEN once consecutive
// failures reach FailureThreshold; OPEN lazily transitions to HALF_OPEN after
// RecoveryTimeout on the next call; HALF_OPEN admits at most HalfOpenMaxCalls
// trial calls, re-opens on any failure, and closes again after that many
// consecutive successes.
type Breaker struct {
	name   string
	policy BreakerPolicy
	logger types.Logger

	mu sync.RWMutex
	cb *gobreaker.CircuitBreaker[any]
}

// NewBreaker creates a Breaker for the named dependency. The name appears in
// the distinct circuit-open error and in state-change logs.
func NewBreaker(name string, policy BreakerPolicy, logger types.Logger) *Breaker {
	b := &Breaker{
		name:   name,
		policy: policy,
		logger: logger,
	}
	b.cb = b.newEngine()
	return b
}

func (b *Breaker) newEngine() *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.policy.HalfOpenMaxCalls,
		Timeout:     b.policy.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= b.policy.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state change",
				"dependency", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// Name returns the protected dependency name.
func (b *Breaker) Name() string { return b.name }

// Execute runs op through the breaker. When the breaker rejects the call
// without running it, the returned error carries ErrCodeCircuitOpen so
// callers can distinguish "the call ran and failed" from "the call never
// ran" and apply a different fallback policy.
func (b *Breaker) Execute(op func() (any, error)) (any, error) {
	b.mu.RLock()
	cb := b.cb
	b.mu.RUnlock()

	result, err := cb.Execute(op)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, types.NewAppError(types.ErrCodeCircuitOpen,
			fmt.Sprintf("circuit breaker %q rejected the call", b.name), err)
	}

	return result, err
}

// State reports the current breaker state: "closed", "open" or "half-open".
func (b *Breaker) State() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cb.State().String()
}

// Healthy reports whether the breaker currently admits calls normally.
func (b *Breaker) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cb.State() == gobreaker.StateClosed
}

// Reset is the explicit administrative reset: it discards all failure state
// and returns the breaker to CLOSED by swapping in a fresh engine. Used by
// automated recovery once the underlying dependency is verified reachable.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.cb = b.newEngine()
	b.mu.Unlock()

	b.logger.Info("circuit breaker reset", "dependency", b.name)
}

// Registry holds the process-wide breaker instances, one per dependency
// name, all sharing one policy. Breakers are created lazily on first use and
// live until process exit.
type Registry struct {
	policy BreakerPolicy
	logger types.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(policy BreakerPolicy, logger types.Logger) *Registry {
	return &Registry{
		policy:   policy,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for the named dependency, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, r.policy, r.logger)
	r.breakers[name] = b
	return b
}

// States returns the current state of every registered breaker.
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		states[name] = b.State()
	}
	return states
}

// ResetUnhealthy resets every breaker not currently closed and returns the
// names reset, sorted order not guaranteed.
func (r *Registry) ResetUnhealthy() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reset []string
	for name, b := range r.breakers {
		if !b.Healthy() {
			b.Reset()
			reset = append(reset, name)
		}
	}
	return reset
}
