package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricOperationDuration = "OperationDuration"
	MetricOperationFailure  = "OperationFailure"
	MetricRetryAttempt      = "RetryAttempt"
	MetricCircuitOpen       = "CircuitBreakerOpen"
	MetricAlertDelivered    = "AlertDelivered"
	MetricAlertDegraded     = "AlertDeliveredDegraded"
	MetricEndpointsRemoved  = "InvalidEndpointsRemoved"

	// Dimension Keys
	DimOperation  = "Operation"
	DimDependency = "Dependency"
	DimResult     = "Result"
	DimSeverity   = "Severity"

	// Metric Namespace
	MetricNamespace = "SpendWatch"
)

// Dependency names for circuit breakers and metrics dimensions. One breaker
// instance exists per dependency name for the life of the process.
const (
	DependencyNotificationProvider = "notification-provider"
	DependencyPushPlatform         = "push-platform"
)
