package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "ex.leads"
	DLXName      = "ex.leads.dlx" // Dead Letter Exchange

	RetryQueue    = "q.lead_retries"
	FailureQueue  = "q.lead_failures"
	RetryDLQ      = "q.lead_retries.dlq"
	FailureDLQ    = "q.lead_failures.dlq"
	RetryKey      = "k.retry"
	FailedLeadKey = "k.lead_failed"
)

type RabbitMQ struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := setupTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring topology: %w", err)
	}

	return &RabbitMQ{Conn: conn, Ch: ch}, nil
}

type binding struct {
	queue string
	dlq   string
	key   string
}

var bindings = []binding{
	{queue: RetryQueue, dlq: RetryDLQ, key: RetryKey},
	{queue: FailureQueue, dlq: FailureDLQ, key: FailedLeadKey},
}

// setupTopology declares both exchanges and, per binding, a work queue whose rejected
// messages are dead-lettered into its DLQ with the same routing key.
func setupTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(DLXName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(ExchangeName, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.dlq, true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.QueueBind(b.dlq, b.key, DLXName, false, nil); err != nil {
			return err
		}

		args := amqp.Table{
			"x-dead-letter-exchange":    DLXName,
			"x-dead-letter-routing-key": b.key,
		}
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, args); err != nil {
			return err
		}
		if err := ch.QueueBind(b.queue, b.key, ExchangeName, false, nil); err != nil {
			return err
		}
	}
	return nil
}

// Healthy reports whether the connection is still open.
func (r *RabbitMQ) Healthy() bool {
	return r != nil && r.Conn != nil && !r.Conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.Ch != nil {
		r.Ch.Close()
	}
	if r.Conn != nil {
		return r.Conn.Close()
	}
	return nil
}
