package worker

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/weatherflows/weatherflows/internal/workflow"
)

// SQSAPI is the subset of *sqs.Client used by SQSConsumer.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSConfig holds configuration for the SQS consumer.
type SQSConfig struct {
	Client   SQSAPI
	QueueURL string
	Runner   *Runner
	Logger   zerolog.Logger

	// MaxMessages per receive call, 1 to 10.
	// Default: 10
	MaxMessages int32

	// WaitTime is the long-poll duration, at most 20 seconds.
	// Default: 20 seconds
	WaitTime time.Duration

	// ErrorBackOff paces receive retries after failures.
	// Default: exponential, 1s to 1m, never giving up
	ErrorBackOff backoff.BackOff
}

// SQSConsumer long-polls a queue for trigger messages. Handled messages are
// deleted; messages marked for retry reappear after the queue's visibility
// timeout.
type SQSConsumer struct {
	client      SQSAPI
	queueURL    string
	runner      *Runner
	logger      zerolog.Logger
	maxMessages int32
	waitSeconds int32
	errBackOff  backoff.BackOff
}

// NewSQSConsumer creates a consumer.
func NewSQSConsumer(cfg SQSConfig) (*SQSConsumer, error) {
	if cfg.Client == nil || cfg.Runner == nil {
		return nil, errors.New("worker: sqs client and runner are required")
	}
	if cfg.QueueURL == "" {
		return nil, errors.New("worker: sqs queue url is required")
	}
	if cfg.MaxMessages == 0 {
		cfg.MaxMessages = 10
	}
	if cfg.MaxMessages < 1 || cfg.MaxMessages > 10 {
		return nil, errors.New("worker: sqs max messages must be between 1 and 10")
	}
	if cfg.WaitTime == 0 {
		cfg.WaitTime = 20 * time.Second
	}
	if cfg.WaitTime < 0 || cfg.WaitTime > 20*time.Second {
		return nil, errors.New("worker: sqs wait time must be between 0 and 20s")
	}
	if cfg.ErrorBackOff == nil {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = time.Second
		eb.MaxInterval = time.Minute
		eb.MaxElapsedTime = 0
		cfg.ErrorBackOff = eb
	}

	return &SQSConsumer{
		client:      cfg.Client,
		queueURL:    cfg.QueueURL,
		runner:      cfg.Runner,
		logger:      cfg.Logger.With().Str("component", "sqs").Logger(),
		maxMessages: cfg.MaxMessages,
		waitSeconds: int32(cfg.WaitTime / time.Second),
		errBackOff:  cfg.ErrorBackOff,
	}, nil
}

// Run polls until ctx is cancelled, then returns nil.
func (c *SQSConsumer) Run(ctx context.Context) error {
	c.logger.Info().Str("queue_url", c.queueURL).Msg("starting sqs consumer")
	c.errBackOff.Reset()

	for {
		if ctx.Err() != nil {
			c.logger.Info().Msg("sqs consumer stopped")
			return nil
		}

		if err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait := c.errBackOff.NextBackOff()
			if wait == backoff.Stop {
				return err
			}
			c.logger.Error().Err(err).Dur("retry_in", wait).Msg("failed to receive messages")
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		c.errBackOff.Reset()
	}
}

// Poll performs one receive call and handles what it returns.
func (c *SQSConsumer) Poll(ctx context.Context) error {
	output, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: c.maxMessages,
		WaitTimeSeconds:     c.waitSeconds,
	})
	if err != nil {
		return err
	}

	for _, msg := range output.Messages {
		c.handleMessage(ctx, msg)
	}
	return nil
}

func (c *SQSConsumer) handleMessage(ctx context.Context, msg types.Message) {
	logger := c.logger.With().Str("message_id", aws.ToString(msg.MessageId)).Logger()
	logger.Debug().Msg("received sqs message")

	if c.runner.HandleMessage(ctx, []byte(aws.ToString(msg.Body)), workflow.TriggerSQS, logger) == Retry {
		return
	}

	// The run is recorded; a failed delete only means a duplicate delivery.
	_, err := c.client.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to delete message")
	}
}
