package alerts

import (
	"context"
	"fmt"

	"spendwatch/internal/metrics"
	"spendwatch/internal/resilience"
	"spendwatch/internal/types"
)

// Publisher is the provider surface the dispatcher needs. Implemented by
// provider.Client.
type Publisher interface {
	PublishJSON(ctx context.Context, topicARN, subject, message string) (string, error)
}

// FailureSink receives alerts that could not be delivered on any channel.
// Implemented by DLQPublisher; nil disables the sink.
type FailureSink interface {
	PublishFailure(ctx context.Context, alert types.AlertContext, subject string, cause error) error
}

// DeliveryResult reports one completed dispatch: which channels the provider
// message carried and whether the push channel had to be dropped.
type DeliveryResult struct {
	AlertID   string   `json:"alert_id"`
	MessageID string   `json:"message_id"`
	Channels  []string `json:"channels"`
	Degraded  bool     `json:"degraded"`
}

// Dispatcher sends one logical alert to every configured channel through the
// retry executor and the notification-provider circuit breaker.
type Dispatcher struct {
	publisher Publisher
	sink      FailureSink
	exec      *resilience.Executor
	breaker   *resilience.Breaker
	retry     resilience.RetryPolicy
	topicARN  string
	push      PushOptions
	logger    types.Logger
	observer  metrics.Observer
}

// NewDispatcher creates a dispatcher for the given alert topic. push governs
// whether and how push sub-payloads are rendered; sink may be nil.
func NewDispatcher(
	publisher Publisher,
	sink FailureSink,
	exec *resilience.Executor,
	breaker *resilience.Breaker,
	retry resilience.RetryPolicy,
	topicARN string,
	push PushOptions,
	logger types.Logger,
	observer metrics.Observer,
) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		sink:      sink,
		exec:      exec,
		breaker:   breaker,
		retry:     retry,
		topicARN:  topicARN,
		push:      push,
		logger:    logger,
		observer:  observer,
	}
}

// Dispatch delivers the alert. On a push-specific failure it retries once
// with a push-free message; the result then reports Degraded=true with only
// the non-push channels. Any other failure, or a failed fallback, propagates
// the original error after notifying the failure sink.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.AlertContext) (*DeliveryResult, error) {
	subject := renderSubject(alert)

	opts := d.push
	message, channels, err := buildMessage(alert, opts)
	if err != nil && opts.Enabled && types.IsPushSpecific(err) {
		// The push payload could not even be rendered within provider
		// limits. Fall straight back to the bulk-text channels.
		d.logger.Warn("push payload rendering failed, degrading delivery",
			"alert_id", alert.AlertID,
			"error", err.Error(),
		)
		opts.Enabled = false
		message, channels, err = buildMessage(alert, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("dispatch alert %s: %w", alert.AlertID, err)
	}

	messageID, sendErr := d.send(ctx, subject, message)
	if sendErr != nil && opts.Enabled && types.IsPushSpecific(sendErr) {
		d.logger.Warn("push-specific delivery failure, retrying without push",
			"alert_id", alert.AlertID,
			"error", sendErr.Error(),
		)

		fallback := opts
		fallback.Enabled = false
		fallbackMsg, fallbackChannels, buildErr := buildMessage(alert, fallback)
		if buildErr == nil {
			if id, fallbackErr := d.send(ctx, subject, fallbackMsg); fallbackErr == nil {
				d.observer.Count(ctx, types.MetricAlertDegraded, types.DimSeverity, string(alert.Severity))
				d.logger.Info("alert delivered with degraded channel set",
					"alert_id", alert.AlertID,
					"message_id", id,
					"channels", fallbackChannels,
				)
				return &DeliveryResult{
					AlertID:   alert.AlertID,
					MessageID: id,
					Channels:  fallbackChannels,
					Degraded:  true,
				}, nil
			}
		}
		// Fallback failed too: propagate the original error below.
	}

	if sendErr != nil {
		d.notifyFailure(ctx, alert, subject, sendErr)
		return nil, fmt.Errorf("dispatch alert %s: %w", alert.AlertID, sendErr)
	}

	d.observer.Count(ctx, types.MetricAlertDelivered, types.DimSeverity, string(alert.Severity))
	d.logger.Info("alert delivered",
		"alert_id", alert.AlertID,
		"message_id", messageID,
		"channels", channels,
		"severity", string(alert.Severity),
	)

	return &DeliveryResult{
		AlertID:   alert.AlertID,
		MessageID: messageID,
		Channels:  channels,
		Degraded:  d.push.Enabled && !opts.Enabled,
	}, nil
}

// send publishes one provider message under retry + circuit breaker and
// returns the provider message ID.
func (d *Dispatcher) send(ctx context.Context, subject, message string) (string, error) {
	var messageID string
	err := d.exec.Execute(ctx, "alerts.Publish", d.retry, nil, func(ctx context.Context) error {
		result, err := d.breaker.Execute(func() (any, error) {
			return d.publisher.PublishJSON(ctx, d.topicARN, subject, message)
		})
		if err != nil {
			return err
		}
		messageID, _ = result.(string)
		return nil
	})
	return messageID, err
}

// notifyFailure forwards a terminally failed alert to the failure sink.
// Best effort: sink errors are logged, never propagated.
func (d *Dispatcher) notifyFailure(ctx context.Context, alert types.AlertContext, subject string, cause error) {
	if d.sink == nil {
		return
	}
	if err := d.sink.PublishFailure(ctx, alert, subject, cause); err != nil {
		d.logger.Error("failed to record undeliverable alert",
			"alert_id", alert.AlertID,
			"error", err.Error(),
		)
	}
}
