package worker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/infra/http/middleware"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

type RetryExecutor interface {
	Execute(ctx context.Context, input usecase.RetryInput) (*usecase.RetryOutput, error)
}

// RetryWorker resends unsent failed leads on a schedule. While batches keep failing the wait
// between runs grows exponentially up to maxFactor times the interval.
type RetryWorker struct {
	retry    RetryExecutor
	interval time.Duration
	input    usecase.RetryInput
	backoff  *backoff.ExponentialBackOff
}

const maxFactor = 16

func NewRetryWorker(retry RetryExecutor, interval time.Duration, removeSuccessful bool) *RetryWorker {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = interval * maxFactor
	b.MaxElapsedTime = 0
	b.Reset()

	return &RetryWorker{
		retry:    retry,
		interval: interval,
		input: usecase.RetryInput{
			Selection:        entity.SelectUnsent,
			MarkSent:         true,
			RemoveSuccessful: removeSuccessful,
		},
		backoff: b,
	}
}

func (w *RetryWorker) Start(ctx context.Context) {
	logrus.WithField("interval", w.interval).Info("scheduled retry worker started")

	timer := time.NewTimer(w.runOnce(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("scheduled retry worker stopped")
			return
		case <-timer.C:
			timer.Reset(w.runOnce(ctx))
		}
	}
}

// runOnce runs one batch and returns how long to wait before the next one.
func (w *RetryWorker) runOnce(ctx context.Context) time.Duration {
	out, err := w.retry.Execute(ctx, w.input)
	if err != nil {
		middleware.RecordRetryBatch("schedule", 0, 0, err)
		next := w.backoff.NextBackOff()
		logrus.WithError(err).WithField("next_run_in", next).Error("scheduled retry batch failed")
		return next
	}

	middleware.RecordRetryBatch("schedule", out.SuccessCount, out.FailureCount, nil)
	if out.FailureCount > 0 {
		next := w.backoff.NextBackOff()
		logrus.WithFields(logrus.Fields{
			"success":     out.SuccessCount,
			"failure":     out.FailureCount,
			"next_run_in": next,
		}).Warn("scheduled retry left failures")
		return next
	}

	if out.SuccessCount > 0 {
		logrus.WithField("success", out.SuccessCount).Info("scheduled retry delivered leads")
	}
	w.backoff.Reset()
	return w.interval
}
