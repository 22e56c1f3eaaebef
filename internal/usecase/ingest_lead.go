package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/lead-relay/internal/entity"
)

type IngestLeadInput struct {
	Channel   entity.Channel
	Payload   map[string]any
	RequestID string
}

// IngestLeadOutput describes what happened to one inbound event. Exactly one of
// Delivered or FailedLeadID is set.
type IngestLeadOutput struct {
	RequestID    string            `json:"request_id"`
	Delivered    bool              `json:"delivered"`
	StatusCode   int               `json:"status,omitempty"`
	Response     string            `json:"response,omitempty"`
	FailedLeadID int64             `json:"failed_lead_id,omitempty"`
	ErrorType    string            `json:"error_type,omitempty"`
	Error        string            `json:"error,omitempty"`
	Lead         entity.LeadRecord `json:"-"`
}

type IngestLeadUseCase struct {
	Normalizer LeadNormalizer
	Tokens     TokenProvider
	CRM        LeadDeliverer
	EventLog   entity.EventLogRepository
	Failed     entity.FailedLeadRepository
	Notifiers  []FailureNotifier
	Now        func() time.Time
}

func NewIngestLeadUseCase(
	normalizer LeadNormalizer,
	tokens TokenProvider,
	crm LeadDeliverer,
	eventLog entity.EventLogRepository,
	failed entity.FailedLeadRepository,
	notifiers ...FailureNotifier,
) *IngestLeadUseCase {
	return &IngestLeadUseCase{
		Normalizer: normalizer,
		Tokens:     tokens,
		CRM:        crm,
		EventLog:   eventLog,
		Failed:     failed,
		Notifiers:  notifiers,
		Now:        time.Now,
	}
}

// Execute normalizes, delivers and records one inbound event. Rejections are returned as
// *entity.RejectionError before anything is sent or stored; a store failure is returned as
// *entity.StoreIOError. Delivery failures are recorded in the failed store and reported
// through the output.
func (uc *IngestLeadUseCase) Execute(ctx context.Context, input IngestLeadInput) (*IngestLeadOutput, error) {
	requestID := input.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := logrus.WithFields(logrus.Fields{"request_id": requestID, "channel": input.Channel})

	// 1. Map the payload onto CRM fields
	lead, err := uc.Normalizer.Normalize(input.Channel, input.Payload)
	if err != nil {
		logger.WithError(err).Info("lead rejected")
		return nil, err
	}

	// 2. Deliver
	result := deliver(ctx, newTokenSession(uc.Tokens), uc.CRM, lead)
	now := uc.Now().UTC()
	out := &IngestLeadOutput{
		RequestID:  requestID,
		StatusCode: result.outcome.StatusCode,
		Response:   result.outcome.ResponseBody,
		Lead:       lead,
	}

	// 3. Record the outcome in exactly one store
	if result.succeeded() {
		entry := entity.EventLogEntry{
			Timestamp: now,
			RequestID: requestID,
			Channel:   input.Channel,
			Status:    result.outcome.StatusCode,
			Lead:      lead,
		}
		if err := uc.EventLog.Append(ctx, entry); err != nil {
			return nil, fmt.Errorf("recording delivered lead: %w", err)
		}
		out.Delivered = true
		logger.WithField("status", result.outcome.StatusCode).Info("lead delivered")
		return out, nil
	}

	failed := &entity.FailedLead{
		Timestamp:  now,
		RequestID:  requestID,
		Channel:    input.Channel,
		ErrorType:  result.errorType,
		Error:      result.err.Error(),
		Status:     result.outcome.StatusCode,
		Response:   result.outcome.ResponseBody,
		Lead:       lead,
		LastStatus: result.outcome.StatusCode,
	}
	if err := uc.Failed.Append(ctx, failed); err != nil {
		return nil, fmt.Errorf("recording failed lead: %w", err)
	}
	out.FailedLeadID = failed.ID
	out.ErrorType = failed.ErrorType
	out.Error = failed.Error
	logger.WithFields(logrus.Fields{
		"failed_lead_id": failed.ID,
		"error_type":     failed.ErrorType,
		"status":         failed.Status,
	}).Warn("lead delivery failed")

	// 4. Tell whoever listens; this never changes the result
	for _, n := range uc.Notifiers {
		if err := n.NotifyFailure(ctx, *failed); err != nil {
			logger.WithError(err).Error("failed lead notification")
		}
	}
	return out, nil
}
