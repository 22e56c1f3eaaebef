package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)

	leadsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_ingested_total",
			Help: "Inbound lead events by channel and outcome (delivered, failed, rejected)",
		},
		[]string{"channel", "outcome"},
	)

	crmErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_errors_total",
			Help: "Failed CRM deliveries by error type",
		},
		[]string{"error_type"},
	)

	retryBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_batches_total",
			Help: "Retry batches by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	retryRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_records_total",
			Help: "Failed leads resent by outcome",
		},
		[]string{"outcome"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Metrics records request counts and latencies labelled with the chi route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		activeConnections.Inc()
		defer activeConnections.Dec()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.statusCode)
		path := routePattern(r)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func RecordLead(channel, outcome string) {
	leadsIngested.WithLabelValues(channel, outcome).Inc()
}

func RecordCRMError(errorType string) {
	crmErrors.WithLabelValues(errorType).Inc()
}

// RecordRetryBatch counts one batch and its per-record outcomes.
func RecordRetryBatch(trigger string, success, failure int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	retryBatches.WithLabelValues(trigger, result).Inc()
	retryRecords.WithLabelValues("success").Add(float64(success))
	retryRecords.WithLabelValues("failure").Add(float64(failure))
}
