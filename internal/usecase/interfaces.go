package usecase

import (
	"context"

	"github.com/xavierca1/lead-relay/internal/entity"
)

// TokenProvider hands out CRM access tokens. Invalidate drops any cached token.
type TokenProvider interface {
	Acquire(ctx context.Context) (entity.AccessToken, error)
	Invalidate()
}

type LeadDeliverer interface {
	DeliverLead(ctx context.Context, token entity.AccessToken, lead entity.LeadRecord) (entity.DeliveryOutcome, error)
}

// FailureNotifier is told about every lead that lands in the failed store. Notifier
// errors are logged and never change the ingestion result.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, lead entity.FailedLead) error
}

type LeadNormalizer interface {
	Normalize(channel entity.Channel, raw map[string]any) (entity.LeadRecord, error)
}
