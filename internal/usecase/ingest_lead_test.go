package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/lead-relay/internal/entity"
)

func newIngest(t *testing.T, tokens *MockTokenProvider, crm *MockDeliverer, notifiers ...FailureNotifier) (*IngestLeadUseCase, entity.EventLogRepository, entity.FailedLeadRepository) {
	t.Helper()
	eventLog, failed := newStores(t)
	uc := NewIngestLeadUseCase(NewNormalizer(nil), tokens, crm, eventLog, failed, notifiers...)
	uc.Now = func() time.Time { return time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC) }
	return uc, eventLog, failed
}

func TestIngestDeliveredLeadIsLogged(t *testing.T) {
	tokens := new(MockTokenProvider)
	crm := new(MockDeliverer)
	tokens.On("Acquire", mock.Anything).Return(testToken, nil)
	crm.On("DeliverLead", mock.Anything, testToken, mock.Anything).
		Return(entity.DeliveryOutcome{StatusCode: 200, ResponseBody: `{"success":true}`}, nil)

	uc, eventLog, failed := newIngest(t, tokens, crm)
	ctx := context.Background()

	out, err := uc.Execute(ctx, IngestLeadInput{Channel: entity.ChannelWeb, Payload: validPayload()})

	require.NoError(t, err)
	assert.True(t, out.Delivered)
	assert.Equal(t, 200, out.StatusCode)
	assert.NotEmpty(t, out.RequestID)

	entries, err := eventLog.Scan(ctx, entity.EventLogFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 200, entries[0].Status)
	assert.Equal(t, out.RequestID, entries[0].RequestID)
	assert.Equal(t, "A", entries[0].Lead[entity.FieldFirstname])

	leads, err := failed.Scan(ctx, entity.FailedLeadFilter{})
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestIngestRejectionMakesNoCalls(t *testing.T) {
	tokens := new(MockTokenProvider)
	crm := new(MockDeliverer)
	uc, eventLog, failed := newIngest(t, tokens, crm)
	ctx := context.Background()

	payloads := []map[string]any{
		{},
		{"Firstname": "A", "Lastname": "B", "Mobile": "500"},
		{"Firstname": "", "Lastname": "B", "Mobile": "500", "Email": "a@b.com"},
	}
	for _, p := range payloads {
		_, err := uc.Execute(ctx, IngestLeadInput{Channel: entity.ChannelTikTok, Payload: p})
		var rejection *entity.RejectionError
		assert.ErrorAs(t, err, &rejection)
	}

	tokens.AssertNotCalled(t, "Acquire", mock.Anything)
	crm.AssertNotCalled(t, "DeliverLead", mock.Anything, mock.Anything, mock.Anything)
	entries, _ := eventLog.Scan(ctx, entity.EventLogFilter{})
	leads, _ := failed.Scan(ctx, entity.FailedLeadFilter{})
	assert.Empty(t, entries)
	assert.Empty(t, leads)
}

func TestIngestRejectedByCRMIsStoredAsFailed(t *testing.T) {
	tokens := new(MockTokenProvider)
	crm := new(MockDeliverer)
	notifier := new(MockNotifier)
	tokens.On("Acquire", mock.Anything).Return(testToken, nil)
	crm.On("DeliverLead", mock.Anything, testToken, mock.Anything).
		Return(entity.DeliveryOutcome{StatusCode: 400, ResponseBody: "INVALID_FIELD"}, nil)
	notifier.On("NotifyFailure", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	uc, eventLog, failed := newIngest(t, tokens, crm, notifier)
	ctx := context.Background()

	out, err := uc.Execute(ctx, IngestLeadInput{Channel: entity.ChannelWeb, Payload: validPayload()})

	require.NoError(t, err)
	assert.False(t, out.Delivered)
	assert.Equal(t, 400, out.StatusCode)
	assert.Equal(t, entity.ErrorTypeDelivery, out.ErrorType)
	assert.Equal(t, int64(1), out.FailedLeadID)

	leads, err := failed.Scan(ctx, entity.FailedLeadFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, 400, leads[0].LastStatus)
	assert.Equal(t, 400, leads[0].Status)
	assert.Equal(t, "INVALID_FIELD", leads[0].Response)
	assert.False(t, leads[0].Sent)

	entries, _ := eventLog.Scan(ctx, entity.EventLogFilter{})
	assert.Empty(t, entries)
	notifier.AssertNumberOfCalls(t, "NotifyFailure", 1)
}

func TestIngestAuthFailureIsStoredAsAuthError(t *testing.T) {
	tokens := new(MockTokenProvider)
	crm := new(MockDeliverer)
	tokens.On("Acquire", mock.Anything).
		Return(entity.AccessToken{}, &entity.AuthError{StatusCode: 400, Err: errors.New("invalid_grant")})

	uc, eventLog, failed := newIngest(t, tokens, crm)
	ctx := context.Background()

	out, err := uc.Execute(ctx, IngestLeadInput{Channel: entity.ChannelSnapchat, Payload: validPayload()})

	require.NoError(t, err)
	assert.False(t, out.Delivered)
	assert.Equal(t, entity.ErrorTypeAuth, out.ErrorType)
	crm.AssertNotCalled(t, "DeliverLead", mock.Anything, mock.Anything, mock.Anything)

	leads, err := failed.Scan(ctx, entity.FailedLeadFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, entity.ErrorTypeAuth, leads[0].ErrorType)
	assert.False(t, leads[0].HasLastStatus())
	assert.Equal(t, entity.ChannelSnapchat, leads[0].Channel)

	entries, _ := eventLog.Scan(ctx, entity.EventLogFilter{})
	assert.Empty(t, entries)
}

func TestIngestTransportFailure(t *testing.T) {
	tokens := new(MockTokenProvider)
	crm := new(MockDeliverer)
	tokens.On("Acquire", mock.Anything).Return(testToken, nil)
	crm.On("DeliverLead", mock.Anything, testToken, mock.Anything).
		Return(entity.DeliveryOutcome{}, &entity.TransportError{Err: errors.New("connection refused")})

	uc, _, failed := newIngest(t, tokens, crm)

	out, err := uc.Execute(context.Background(), IngestLeadInput{Channel: entity.ChannelWeb, Payload: validPayload()})

	require.NoError(t, err)
	assert.Equal(t, entity.ErrorTypeTransport, out.ErrorType)
	assert.Contains(t, out.Error, "connection refused")
	leads, _ := failed.Scan(context.Background(), entity.FailedLeadFilter{ErrorType: entity.ErrorTypeTransport})
	assert.Len(t, leads, 1)
}

func TestIngestUnauthorizedInvalidatesToken(t *testing.T) {
	tokens := new(MockTokenProvider)
	crm := new(MockDeliverer)
	tokens.On("Acquire", mock.Anything).Return(testToken, nil)
	tokens.On("Invalidate").Return()
	crm.On("DeliverLead", mock.Anything, testToken, mock.Anything).
		Return(entity.DeliveryOutcome{StatusCode: 401, ResponseBody: "Session expired"}, nil)

	uc, _, _ := newIngest(t, tokens, crm)

	out, err := uc.Execute(context.Background(), IngestLeadInput{Channel: entity.ChannelWeb, Payload: validPayload()})

	require.NoError(t, err)
	assert.Equal(t, entity.ErrorTypeDelivery, out.ErrorType)
	tokens.AssertCalled(t, "Invalidate")
}

func TestIngestStoreFailureSurfaces(t *testing.T) {
	tokens := new(MockTokenProvider)
	crm := new(MockDeliverer)
	failed := new(MockFailedRepository)
	tokens.On("Acquire", mock.Anything).Return(testToken, nil)
	crm.On("DeliverLead", mock.Anything, testToken, mock.Anything).
		Return(entity.DeliveryOutcome{StatusCode: 500}, nil)
	failed.On("Append", mock.Anything, mock.Anything).
		Return(&entity.StoreIOError{Op: "append", Err: errors.New("disk full")})

	eventLog, _ := newStores(t)
	uc := NewIngestLeadUseCase(NewNormalizer(nil), tokens, crm, eventLog, failed)

	_, err := uc.Execute(context.Background(), IngestLeadInput{Channel: entity.ChannelWeb, Payload: validPayload()})

	var ioErr *entity.StoreIOError
	assert.ErrorAs(t, err, &ioErr)
}
