// Package main is the entrypoint for the alert runner Lambda function.
//
// The runner is invoked once per detected threshold breach. It builds the
// alert context (exceed amount, severity, top cost drivers), then dispatches
// it across every configured channel through the retry executor and the
// notification-provider circuit breaker. Push-specific delivery failures
// degrade to the bulk-text channels; terminal failures land on the
// failed-alert queue.
//
// Cold start (main):
//  1. Initialize the structured logger.
//  2. Load and validate environment configuration (fail fast).
//  3. Load the AWS SDK configuration and construct SNS/SQS/CloudWatch clients.
//  4. Build the resilience layer, the provider client, and the dispatcher.
//  5. Register the handler and call lambda.Start.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"spendwatch/internal/alerts"
	"spendwatch/internal/config"
	"spendwatch/internal/metrics"
	"spendwatch/internal/provider"
	"spendwatch/internal/resilience"
	"spendwatch/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog satisfies Info/Warn/Error directly but With returns *slog.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// BreachEvent is the invocation payload: one detected threshold breach.
type BreachEvent struct {
	Threshold     float64            `json:"threshold"`
	ObservedSpend float64            `json:"observed_spend"`
	ServiceCosts  map[string]float64 `json:"service_costs"`
}

// Handler holds the dependencies for the alert runner.
type Handler struct {
	dispatcher *alerts.Dispatcher
	clock      types.Clock
	logger     types.Logger
}

// Handle builds the alert context for the breach and dispatches it. A
// non-breach payload is a validation error; the invocation fails without
// touching the provider.
func (h *Handler) Handle(ctx context.Context, event BreachEvent) (*alerts.DeliveryResult, error) {
	alert, err := alerts.BuildContext(event.Threshold, event.ObservedSpend, event.ServiceCosts, h.clock)
	if err != nil {
		h.logger.Error("rejecting breach event",
			"threshold", event.Threshold,
			"observed_spend", event.ObservedSpend,
			"error", err.Error(),
		)
		return nil, err
	}

	h.logger.Info("processing threshold breach",
		"alert_id", alert.AlertID,
		"severity", string(alert.Severity),
		"exceed_amount", alert.ExceedAmount,
	)

	return h.dispatcher.Dispatch(ctx, alert)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("alert runner initializing (cold start)")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	handler, err := buildHandler(context.Background(), cfg, typedLogger)
	if err != nil {
		logger.Error("failed to initialize handler", "error", err)
		os.Exit(1)
	}

	lambda.Start(handler.Handle)
}

// buildHandler wires the full dispatch pipeline from loaded configuration.
func buildHandler(ctx context.Context, cfg *config.Config, logger types.Logger) (*Handler, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWS.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	snsClient := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg)

	observer := metrics.NewCloudWatchObserver(cwClient, logger)
	exec := resilience.NewExecutor(logger, observer)
	breaker := resilience.NewBreaker(
		types.DependencyNotificationProvider,
		resilience.BreakerPolicyFromConfig(cfg.Breaker),
		logger,
	)

	var sink alerts.FailureSink
	if cfg.Notify.DLQURL != "" {
		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = &cfg.AWS.EndpointURL
			}
		})
		sink = alerts.NewDLQPublisher(sqsClient, cfg.Notify.DLQURL, logger)
	}

	dispatcher := alerts.NewDispatcher(
		provider.NewClient(snsClient, logger),
		sink,
		exec,
		breaker,
		resilience.PolicyFromConfig(cfg.Retry),
		cfg.Notify.TopicARN,
		alerts.PushOptions{
			Enabled:  cfg.Push.Enabled(),
			Sandbox:  cfg.Push.Sandbox,
			BundleID: cfg.Push.BundleID,
		},
		logger,
		observer,
	)

	return &Handler{
		dispatcher: dispatcher,
		clock:      types.RealClock{},
		logger:     logger,
	}, nil
}
