package main

import (
	"context"
	"testing"
	"time"

	"spendwatch/internal/alerts"
	"spendwatch/internal/metrics"
	"spendwatch/internal/resilience"
	"spendwatch/internal/types"
)

type stubPublisher struct {
	calls int
	err   error
}

func (s *stubPublisher) PublishJSON(context.Context, string, string, string) (string, error) {
	s.calls++
	return "msg-1", s.err
}

func newHandler(pub alerts.Publisher) *Handler {
	exec := resilience.NewExecutor(types.NopLogger{}, metrics.Nop{},
		resilience.WithSleepFunc(func(time.Duration) {}))
	breaker := resilience.NewBreaker(types.DependencyNotificationProvider, resilience.BreakerPolicy{
		FailureThreshold: 100,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 1,
	}, types.NopLogger{})
	policy := resilience.RetryPolicy{
		MaxAttempts:   1,
		BaseDelay:     time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 1,
	}
	dispatcher := alerts.NewDispatcher(pub, nil, exec, breaker, policy,
		"arn:topic", alerts.PushOptions{}, types.NopLogger{}, metrics.Nop{})
	return &Handler{
		dispatcher: dispatcher,
		clock:      types.RealClock{},
		logger:     types.NopLogger{},
	}
}

func TestHandleDispatchesBreach(t *testing.T) {
	pub := &stubPublisher{}
	h := newHandler(pub)

	result, err := h.Handle(context.Background(), BreachEvent{
		Threshold:     100,
		ObservedSpend: 140,
		ServiceCosts:  map[string]float64{"compute": 90, "storage": 50},
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if pub.calls != 1 {
		t.Errorf("publish calls = %d, want 1", pub.calls)
	}
	if result.AlertID == "" {
		t.Error("result missing alert ID")
	}
}

func TestHandleRejectsNonBreach(t *testing.T) {
	pub := &stubPublisher{}
	h := newHandler(pub)

	_, err := h.Handle(context.Background(), BreachEvent{
		Threshold:     100,
		ObservedSpend: 90,
	})
	if err == nil {
		t.Fatal("expected validation error for non-breach payload")
	}
	if pub.calls != 0 {
		t.Error("non-breach payload must not reach the provider")
	}
}
