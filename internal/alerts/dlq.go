package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"spendwatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// FailedAlertMessage is the dead-letter record for an alert that could not
// be delivered on any channel. Operators drain this queue to decide whether
// manual notification is warranted.
type FailedAlertMessage struct {
	AlertID       string          `json:"alert_id"`
	Subject       string          `json:"subject"`
	Severity      types.Severity  `json:"severity"`
	ExceedAmount  float64         `json:"exceed_amount"`
	FailureCode   types.ErrorCode `json:"failure_code"`
	FailureReason string          `json:"failure_reason"`
	FailedAt      time.Time       `json:"failed_at"`
}

// Compile-time assertion that DLQPublisher implements FailureSink.
var _ FailureSink = (*DLQPublisher)(nil)

// DLQPublisher records terminally failed alerts on an SQS dead-letter queue.
type DLQPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
	clock    types.Clock
}

// NewDLQPublisher creates a publisher targeting the failed-alert queue.
func NewDLQPublisher(client SQSSender, queueURL string, logger types.Logger) *DLQPublisher {
	return &DLQPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		clock:    types.RealClock{},
	}
}

// SetClock overrides the clock for testing.
func (p *DLQPublisher) SetClock(c types.Clock) {
	p.clock = c
}

// PublishFailure serializes the failure record and sends it to the queue.
func (p *DLQPublisher) PublishFailure(ctx context.Context, alert types.AlertContext, subject string, cause error) error {
	msg := FailedAlertMessage{
		AlertID:       alert.AlertID,
		Subject:       subject,
		Severity:      alert.Severity,
		ExceedAmount:  alert.ExceedAmount,
		FailureCode:   types.CodeOf(cause),
		FailureReason: cause.Error(),
		FailedAt:      p.clock.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("dlq publisher: failed to marshal message: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("dlq publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.Info("undeliverable alert recorded",
		"alert_id", alert.AlertID,
		"failure_code", string(msg.FailureCode),
	)

	return nil
}
