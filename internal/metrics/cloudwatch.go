package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"spendwatch/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchObserver implements Observer.
var _ Observer = (*CloudWatchObserver)(nil)

// CloudWatchObserver implements Observer by emitting metrics to AWS
// CloudWatch under the SpendWatch namespace.
//
// Metrics emitted:
//   - OperationDuration: Dims {Operation} -- time taken by each attempt
//   - OperationFailure:  Dims {Operation} -- on every failed attempt
//   - arbitrary counters via Count (RetryAttempt, CircuitBreakerOpen, ...)
//
// Emission failures are logged and swallowed: telemetry must never break
// alert delivery.
type CloudWatchObserver struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchObserver creates an Observer that publishes to the SpendWatch
// CloudWatch namespace.
func NewCloudWatchObserver(client CloudWatchClient, logger types.Logger) *CloudWatchObserver {
	return &CloudWatchObserver{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

// ObserveOperation emits OperationDuration and, on failure, OperationFailure.
func (o *CloudWatchObserver) ObserveOperation(ctx context.Context, operation string, duration time.Duration, success bool) {
	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricOperationDuration),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{
				{
					Name:  aws.String(types.DimOperation),
					Value: aws.String(operation),
				},
			},
		},
	}

	if !success {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricOperationFailure),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{
					Name:  aws.String(types.DimOperation),
					Value: aws.String(operation),
				},
			},
		})
	}

	o.put(ctx, data)
}

// Count emits a unit count for the named metric, optionally dimensioned.
func (o *CloudWatchObserver) Count(ctx context.Context, metric string, dimension string, value string) {
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(metric),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	}
	if dimension != "" {
		datum.Dimensions = []cwtypes.Dimension{
			{
				Name:  aws.String(dimension),
				Value: aws.String(value),
			},
		}
	}

	o.put(ctx, []cwtypes.MetricDatum{datum})
}

func (o *CloudWatchObserver) put(ctx context.Context, data []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(o.namespace),
		MetricData: data,
	}

	if _, err := o.client.PutMetricData(ctx, input); err != nil {
		o.logger.Error("failed to emit metrics", "error", err.Error())
	}
}
