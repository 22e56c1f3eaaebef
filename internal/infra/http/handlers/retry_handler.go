package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/infra/http/middleware"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

type RetryExecutor interface {
	Execute(ctx context.Context, input usecase.RetryInput) (*usecase.RetryOutput, error)
}

type RetryPublisher interface {
	PublishRetry(ctx context.Context, input usecase.RetryInput) error
}

type RetryHandler struct {
	Retry RetryExecutor
	Queue RetryPublisher // nil when RabbitMQ is not configured
}

func NewRetryHandler(retry RetryExecutor, queue RetryPublisher) *RetryHandler {
	return &RetryHandler{Retry: retry, Queue: queue}
}

// Handle runs a retry batch for POST /failed-logs/retry. With ?async=true and a queue the
// batch is handed to the worker and 202 is returned.
func (h *RetryHandler) Handle(w http.ResponseWriter, r *http.Request) {
	input := usecase.RetryInput{MarkSent: true}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil && err != io.EOF {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON")
		return
	}
	if input.Selection == "" {
		input.Selection = entity.SelectAll
	}
	if err := input.Validate(); err != nil {
		writeError(w, err)
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async && h.Queue != nil {
		if err := h.Queue.PublishRetry(r.Context(), input); err != nil {
			logrus.WithError(err).Error("queueing retry batch")
			writeErrorResponse(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "Could not queue retry batch")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	out, err := h.Retry.Execute(r.Context(), input)
	if err != nil {
		middleware.RecordRetryBatch("http", 0, 0, err)
		writeError(w, err)
		return
	}
	middleware.RecordRetryBatch("http", out.SuccessCount, out.FailureCount, nil)
	writeJSON(w, http.StatusOK, out)
}
