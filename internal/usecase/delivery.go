package usecase

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xavierca1/lead-relay/internal/entity"
)

// tokenSession reuses one access token across the deliveries of a request or batch.
type tokenSession struct {
	provider TokenProvider
	token    *entity.AccessToken
}

func newTokenSession(provider TokenProvider) *tokenSession {
	return &tokenSession{provider: provider}
}

func (s *tokenSession) get(ctx context.Context) (entity.AccessToken, error) {
	if s.token != nil {
		return *s.token, nil
	}
	token, err := s.provider.Acquire(ctx)
	if err != nil {
		return entity.AccessToken{}, err
	}
	s.token = &token
	return token, nil
}

// reset forgets the session token and the provider cache.
func (s *tokenSession) reset() {
	s.token = nil
	s.provider.Invalidate()
}

// attempt is the classified result of one delivery.
type attempt struct {
	outcome   entity.DeliveryOutcome
	errorType string
	err       error
}

func (a attempt) succeeded() bool {
	return a.err == nil && a.outcome.Succeeded()
}

func deliver(ctx context.Context, session *tokenSession, client LeadDeliverer, lead entity.LeadRecord) attempt {
	token, err := session.get(ctx)
	if err != nil {
		return attempt{errorType: classify(err), err: err}
	}

	outcome, err := client.DeliverLead(ctx, token, lead)
	if err != nil {
		return attempt{errorType: classify(err), err: err}
	}
	if outcome.StatusCode == http.StatusUnauthorized {
		session.reset()
	}
	if !outcome.Succeeded() {
		return attempt{
			outcome:   outcome,
			errorType: entity.ErrorTypeDelivery,
			err:       fmt.Errorf("crm answered status %d", outcome.StatusCode),
		}
	}
	return attempt{outcome: outcome}
}
