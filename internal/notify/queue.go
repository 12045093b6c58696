package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/salon-booking/pkg/logging"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// job is the queued form of one Notify call.
type job struct {
	To   Recipient `json:"to"`
	Kind Kind      `json:"kind"`
	Data Data      `json:"data"`
}

// QueueNotifier defers delivery to a QueueConsumer through SQS, so the API
// process never waits on an email or SMS provider.
type QueueNotifier struct {
	client   sqsAPI
	queueURL string
}

func NewQueueNotifier(client sqsAPI, queueURL string) *QueueNotifier {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &QueueNotifier{client: client, queueURL: queueURL}
}

func (q *QueueNotifier) Notify(ctx context.Context, to Recipient, kind Kind, data Data) error {
	body, err := json.Marshal(job{To: to, Kind: kind, Data: data})
	if err != nil {
		return fmt.Errorf("notify: marshal job: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("notify: failed to send SQS message: %w", err)
	}
	return nil
}

const (
	defaultConsumerWorkers = 2
	defaultWaitSeconds     = 10
	defaultBatchSize       = 10
	deleteTimeout          = 5 * time.Second
)

// QueueConsumer drains queued jobs into a Notifier.
type QueueConsumer struct {
	client   sqsAPI
	queueURL string
	target   Notifier
	logger   *logging.Logger
	workers  int
	wait     int32
	batch    int32
	wg       sync.WaitGroup
}

func NewQueueConsumer(client sqsAPI, queueURL string, target Notifier, logger *logging.Logger) *QueueConsumer {
	if client == nil || target == nil {
		panic("notify: consumer requires SQS client and target notifier")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &QueueConsumer{
		client:   client,
		queueURL: queueURL,
		target:   target,
		logger:   logger,
		workers:  defaultConsumerWorkers,
		wait:     defaultWaitSeconds,
		batch:    defaultBatchSize,
	}
}

// WithWorkers sets the number of concurrent pollers.
func (c *QueueConsumer) WithWorkers(n int) *QueueConsumer {
	if n > 0 {
		c.workers = n
	}
	return c
}

// Start launches pollers until ctx is cancelled.
func (c *QueueConsumer) Start(ctx context.Context) {
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.run(ctx, i+1)
	}
}

// Wait blocks until all pollers exit.
func (c *QueueConsumer) Wait() {
	c.wg.Wait()
}

func (c *QueueConsumer) run(ctx context.Context, workerID int) {
	defer c.wg.Done()
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := c.Poll(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error("notify: receive failed", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

// Poll receives one batch and returns how many jobs were handled. A job whose
// delivery fails is left on the queue for redelivery.
func (c *QueueConsumer) Poll(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: c.batch,
		WaitTimeSeconds:     c.wait,
	})
	if err != nil {
		return 0, fmt.Errorf("notify: failed to receive SQS messages: %w", err)
	}
	handled := 0
	for _, msg := range out.Messages {
		var j job
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &j); err != nil {
			c.logger.Error("notify: dropping undecodable job", "error", err, "message_id", aws.ToString(msg.MessageId))
			c.delete(aws.ToString(msg.ReceiptHandle))
			continue
		}
		if err := c.target.Notify(ctx, j.To, j.Kind, j.Data); err != nil {
			c.logger.Warn("notify: delivery failed, leaving for redelivery", "error", err, "kind", j.Kind, "appointment_id", j.Data.AppointmentID)
			continue
		}
		c.delete(aws.ToString(msg.ReceiptHandle))
		handled++
	}
	return handled, nil
}

func (c *QueueConsumer) delete(receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		c.logger.Error("notify: failed to delete SQS message", "error", err)
	}
}

var _ Notifier = (*QueueNotifier)(nil)
