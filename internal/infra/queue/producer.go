package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

// FailedLeadEvent is published on FailureQueue for every lead stored as failed.
type FailedLeadEvent struct {
	ID         int64             `json:"id"`
	RequestID  string            `json:"request_id"`
	Channel    string            `json:"channel"`
	ErrorType  string            `json:"error_type"`
	Error      string            `json:"error"`
	Status     int               `json:"status,omitempty"`
	Campaign   string            `json:"campaign,omitempty"`
	Source     string            `json:"source,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Lead       entity.LeadRecord `json:"lead"`
}

type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQProducer struct {
	Ch Publisher
}

func NewProducer(ch Publisher) *RabbitMQProducer {
	return &RabbitMQProducer{Ch: ch}
}

// PublishRetry queues a retry batch for the worker.
func (p *RabbitMQProducer) PublishRetry(ctx context.Context, input usecase.RetryInput) error {
	return p.publish(ctx, RetryKey, input)
}

// NotifyFailure publishes a FailedLeadEvent.
func (p *RabbitMQProducer) NotifyFailure(ctx context.Context, lead entity.FailedLead) error {
	return p.publish(ctx, FailedLeadKey, FailedLeadEvent{
		ID:         lead.ID,
		RequestID:  lead.RequestID,
		Channel:    string(lead.Channel),
		ErrorType:  lead.ErrorType,
		Error:      lead.Error,
		Status:     lead.Status,
		Campaign:   lead.Lead.Get(entity.FieldCampaignName),
		Source:     lead.Lead.Get(entity.FieldCampaignSource),
		OccurredAt: lead.Timestamp,
		Lead:       lead.Lead,
	})
}

func (p *RabbitMQProducer) publish(ctx context.Context, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", key, err)
	}

	err = p.Ch.PublishWithContext(ctx,
		ExchangeName,
		key,
		false, // Mandatory
		false, // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("publishing %s to rabbitmq: %w", key, err)
	}
	return nil
}
