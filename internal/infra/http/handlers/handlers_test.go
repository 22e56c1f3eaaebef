package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) Execute(ctx context.Context, input usecase.IngestLeadInput) (*usecase.IngestLeadOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*usecase.IngestLeadOutput)
	return out, args.Error(1)
}

type MockRetry struct {
	mock.Mock
}

func (m *MockRetry) Execute(ctx context.Context, input usecase.RetryInput) (*usecase.RetryOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*usecase.RetryOutput)
	return out, args.Error(1)
}

type MockRetryPublisher struct {
	mock.Mock
}

func (m *MockRetryPublisher) PublishRetry(ctx context.Context, input usecase.RetryInput) error {
	return m.Called(ctx, input).Error(0)
}

func webhookRouter(h *LeadHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/webhook", h.Webhook)
	r.Post("/webhook/{channel}", h.Webhook)
	r.Post("/form", h.Form)
	return r
}

func TestWebhookHandler(t *testing.T) {
	t.Run("Delivered lead mirrors CRM status", func(t *testing.T) {
		ingest := new(MockIngester)
		ingest.On("Execute", mock.Anything, mock.MatchedBy(func(in usecase.IngestLeadInput) bool {
			return in.Channel == entity.ChannelTikTok && in.Payload["Firstname"] == "A"
		})).Return(&usecase.IngestLeadOutput{RequestID: "r1", Delivered: true, StatusCode: 201, Response: `{"id":"x"}`}, nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/tiktok", strings.NewReader(`{"Firstname":"A"}`))
		webhookRouter(NewLeadHandler(ingest, 0)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var body DeliveryResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, 201, body.Status)
		assert.Equal(t, `{"id":"x"}`, body.Response)
	})

	t.Run("Bad JSON", func(t *testing.T) {
		ingest := new(MockIngester)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"Firstname":`))
		webhookRouter(NewLeadHandler(ingest, 0)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		ingest.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	})

	t.Run("Unknown channel", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/myspace", strings.NewReader(`{}`))
		webhookRouter(NewLeadHandler(new(MockIngester), 0)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Rejection lists missing fields", func(t *testing.T) {
		ingest := new(MockIngester)
		ingest.On("Execute", mock.Anything, mock.Anything).
			Return(nil, &entity.RejectionError{Fields: []string{"Email"}})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"Firstname":"A"}`))
		webhookRouter(NewLeadHandler(ingest, 0)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, []string{"Email"}, body.Fields)
	})

	t.Run("Auth failure is a server error", func(t *testing.T) {
		ingest := new(MockIngester)
		ingest.On("Execute", mock.Anything, mock.Anything).Return(&usecase.IngestLeadOutput{
			FailedLeadID: 3,
			ErrorType:    entity.ErrorTypeAuth,
			Error:        "auth failed: invalid_grant",
		}, nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/snapchat", strings.NewReader(`{}`))
		webhookRouter(NewLeadHandler(ingest, 0)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "invalid_grant")
	})

	t.Run("No content answer is relayed without a body", func(t *testing.T) {
		ingest := new(MockIngester)
		ingest.On("Execute", mock.Anything, mock.Anything).
			Return(&usecase.IngestLeadOutput{RequestID: "r2", Delivered: true, StatusCode: http.StatusNoContent}, nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"Firstname":"A"}`))
		webhookRouter(NewLeadHandler(ingest, 0)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("Informational answer becomes bad gateway", func(t *testing.T) {
		ingest := new(MockIngester)
		ingest.On("Execute", mock.Anything, mock.Anything).Return(&usecase.IngestLeadOutput{
			RequestID:    "r3",
			StatusCode:   http.StatusContinue,
			FailedLeadID: 4,
			ErrorType:    entity.ErrorTypeDelivery,
		}, nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"Firstname":"A"}`))
		webhookRouter(NewLeadHandler(ingest, 0)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		var body DeliveryResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, http.StatusContinue, body.Status)
		assert.Equal(t, int64(4), body.FailedLeadID)
	})

	t.Run("Rate limit", func(t *testing.T) {
		ingest := new(MockIngester)
		ingest.On("Execute", mock.Anything, mock.Anything).
			Return(&usecase.IngestLeadOutput{Delivered: true, StatusCode: 200}, nil)
		h := NewLeadHandler(ingest, 1)
		defer h.Close()
		router := webhookRouter(h)

		codes := make([]int, 0, 2)
		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
			req.Header.Set("X-Forwarded-For", "10.0.0.1")
			router.ServeHTTP(w, req)
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	})
}

func TestRateLimiterStop(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	rl.Stop()
	rl.Stop()

	select {
	case <-rl.done:
	default:
		t.Fatal("cleanup loop still running")
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	rl.now = func() time.Time { return now }

	rl.Allow("10.0.0.1")
	now = now.Add(3 * time.Minute)
	rl.evict()

	assert.Empty(t, rl.visitors)
}

func TestFormHandler(t *testing.T) {
	ingest := new(MockIngester)
	ingest.On("Execute", mock.Anything, mock.MatchedBy(func(in usecase.IngestLeadInput) bool {
		return in.Channel == entity.ChannelWeb &&
			in.Payload[entity.FieldFirstname] == "Sara" &&
			in.Payload[entity.FieldCampaignSource] == "Facebook"
	})).Return(&usecase.IngestLeadOutput{Delivered: true, StatusCode: 200}, nil)

	form := url.Values{
		"firstname": {"Sara"},
		"lastname":  {"Ali"},
		"mobile":    {"500"},
		"email":     {"s@a.com"},
		"source":    {"Facebook"},
		"campaign":  {"spring"},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	webhookRouter(NewLeadHandler(ingest, 0)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	ingest.AssertExpectations(t)
}

func TestRetryHandler(t *testing.T) {
	t.Run("Runs batch synchronously", func(t *testing.T) {
		retry := new(MockRetry)
		retry.On("Execute", mock.Anything, usecase.RetryInput{
			Selection: entity.SelectIDs, IDs: []int64{2}, MarkSent: true, RemoveSuccessful: true,
		}).Return(&usecase.RetryOutput{Total: 1, SuccessCount: 1, Results: []usecase.RetryResult{{ID: 2, Succeeded: true, Removed: true}}}, nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/failed-logs/retry",
			strings.NewReader(`{"selection":"ids","ids":[2],"mark_sent":true,"remove_successful":true}`))
		NewRetryHandler(retry, nil).Handle(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var out usecase.RetryOutput
		require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
		assert.Equal(t, 1, out.SuccessCount)
		assert.True(t, out.Results[0].Removed)
	})

	t.Run("Empty body retries everything", func(t *testing.T) {
		retry := new(MockRetry)
		retry.On("Execute", mock.Anything, usecase.RetryInput{Selection: entity.SelectAll, MarkSent: true}).
			Return(&usecase.RetryOutput{}, nil)

		w := httptest.NewRecorder()
		NewRetryHandler(retry, nil).Handle(w, httptest.NewRequest(http.MethodPost, "/failed-logs/retry", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		retry.AssertExpectations(t)
	})

	t.Run("Omitted mark_sent defaults to true", func(t *testing.T) {
		retry := new(MockRetry)
		retry.On("Execute", mock.Anything, usecase.RetryInput{Selection: entity.SelectAll, MarkSent: true}).
			Return(&usecase.RetryOutput{}, nil)

		w := httptest.NewRecorder()
		NewRetryHandler(retry, nil).Handle(w, httptest.NewRequest(http.MethodPost, "/failed-logs/retry",
			strings.NewReader(`{"selection":"all"}`)))

		assert.Equal(t, http.StatusOK, w.Code)
		retry.AssertExpectations(t)
	})

	t.Run("Explicit mark_sent false is kept", func(t *testing.T) {
		retry := new(MockRetry)
		retry.On("Execute", mock.Anything, usecase.RetryInput{Selection: entity.SelectAll}).
			Return(&usecase.RetryOutput{}, nil)

		w := httptest.NewRecorder()
		NewRetryHandler(retry, nil).Handle(w, httptest.NewRequest(http.MethodPost, "/failed-logs/retry",
			strings.NewReader(`{"selection":"all","mark_sent":false}`)))

		assert.Equal(t, http.StatusOK, w.Code)
		retry.AssertExpectations(t)
	})

	t.Run("Invalid selection", func(t *testing.T) {
		retry := new(MockRetry)
		w := httptest.NewRecorder()
		NewRetryHandler(retry, nil).Handle(w, httptest.NewRequest(http.MethodPost, "/failed-logs/retry",
			strings.NewReader(`{"selection":"ids"}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "ids")
		retry.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	})

	t.Run("Async goes through the queue", func(t *testing.T) {
		retry := new(MockRetry)
		queue := new(MockRetryPublisher)
		queue.On("PublishRetry", mock.Anything, usecase.RetryInput{Selection: entity.SelectUnsent, MarkSent: true}).Return(nil)

		w := httptest.NewRecorder()
		NewRetryHandler(retry, queue).Handle(w, httptest.NewRequest(http.MethodPost, "/failed-logs/retry?async=true",
			strings.NewReader(`{"selection":"unsent"}`)))

		assert.Equal(t, http.StatusAccepted, w.Code)
		retry.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	})

	t.Run("Store failure", func(t *testing.T) {
		retry := new(MockRetry)
		retry.On("Execute", mock.Anything, mock.Anything).
			Return(nil, &entity.StoreIOError{Op: "scan", Err: errors.New("corrupt")})

		w := httptest.NewRecorder()
		NewRetryHandler(retry, nil).Handle(w, httptest.NewRequest(http.MethodPost, "/failed-logs/retry", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler("test", map[string]Check{
		"store":    func(context.Context) error { return nil },
		"rabbitmq": nil,
	})
	w := httptest.NewRecorder()
	h.Handle(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "not configured", body.Dependencies["rabbitmq"])

	h.Checks["store"] = func(context.Context) error { return errors.New("read-only file system") }
	w = httptest.NewRecorder()
	h.Handle(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
