package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/lead-relay/internal/usecase"
)

type RetryExecutor interface {
	Execute(ctx context.Context, input usecase.RetryInput) (*usecase.RetryOutput, error)
}

// Worker consumes retry requests from RetryQueue.
type Worker struct {
	Channel *amqp.Channel
	Retry   RetryExecutor
}

func NewWorker(ch *amqp.Channel, retry RetryExecutor) *Worker {
	return &Worker{Channel: ch, Retry: retry}
}

// Start blocks until ctx is done or the delivery channel closes.
func (w *Worker) Start(ctx context.Context, queueName string) error {
	if err := w.Channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("setting prefetch: %w", err)
	}
	msgs, err := w.Channel.Consume(
		queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("registering consumer on %s: %w", queueName, err)
	}

	logrus.WithField("queue", queueName).Info("retry worker waiting for messages")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queueName)
			}
			w.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery acks a processed batch. Malformed or failing requests are rejected
// without requeue so they land in the dead letter queue.
func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	logger := logrus.WithField("message_id", d.MessageId)

	var input usecase.RetryInput
	if err := json.Unmarshal(d.Body, &input); err != nil {
		logger.WithError(err).Error("invalid retry request")
		d.Nack(false, false)
		return
	}

	out, err := w.Retry.Execute(ctx, input)
	if err != nil {
		logger.WithError(err).Error("retry batch failed")
		d.Nack(false, false)
		return
	}

	logger.WithFields(logrus.Fields{
		"success": out.SuccessCount,
		"failure": out.FailureCount,
	}).Info("retry batch processed")
	d.Ack(false)
}
