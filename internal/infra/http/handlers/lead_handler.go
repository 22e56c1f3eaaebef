package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/infra/http/middleware"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

const maxBodyBytes = 1 << 20

type LeadIngester interface {
	Execute(ctx context.Context, input usecase.IngestLeadInput) (*usecase.IngestLeadOutput, error)
}

// LeadHandler accepts channel webhooks and the web form.
type LeadHandler struct {
	Ingest      LeadIngester
	rateLimiter *RateLimiter
}

// NewLeadHandler limits each client IP to perMinute events; 0 disables the limit.
func NewLeadHandler(ingest LeadIngester, perMinute int) *LeadHandler {
	h := &LeadHandler{Ingest: ingest}
	if perMinute > 0 {
		h.rateLimiter = NewRateLimiter(perMinute, time.Minute)
	}
	return h
}

// Close stops the rate limiter's cleanup loop.
func (h *LeadHandler) Close() {
	if h.rateLimiter != nil {
		h.rateLimiter.Stop()
	}
}

// DeliveryResponse mirrors what the CRM answered.
type DeliveryResponse struct {
	RequestID    string `json:"request_id"`
	Status       int    `json:"status"`
	Response     string `json:"response"`
	FailedLeadID int64  `json:"failed_lead_id,omitempty"`
}

// Webhook handles POST /webhook and POST /webhook/{channel}.
func (h *LeadHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	channel, err := entity.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		writeErrorResponse(w, http.StatusNotFound, "UNKNOWN_CHANNEL", err.Error())
		return
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		middleware.RecordLead(string(channel), "rejected")
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON")
		return
	}

	h.ingest(w, r, channel, payload)
}

// formFields maps the web form inputs onto inbound keys.
var formFields = map[string]string{
	"firstname":          entity.FieldFirstname,
	"lastname":           entity.FieldLastname,
	"mobile":             entity.FieldMobile,
	"email":              entity.FieldEmail,
	"source":             entity.FieldCampaignSource,
	"campaign":           entity.FieldCampaignName,
	"purchase_timeframe": entity.FieldPurchaseTimeFrame,
}

// Form handles POST /form.
func (h *LeadHandler) Form(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body")
		return
	}

	payload := make(map[string]any, len(formFields))
	for input, field := range formFields {
		if v := strings.TrimSpace(r.PostForm.Get(input)); v != "" {
			payload[field] = v
		}
	}
	h.ingest(w, r, entity.ChannelWeb, payload)
}

func (h *LeadHandler) ingest(w http.ResponseWriter, r *http.Request, channel entity.Channel, payload map[string]any) {
	out, err := h.Ingest.Execute(r.Context(), usecase.IngestLeadInput{
		Channel:   channel,
		Payload:   payload,
		RequestID: chimw.GetReqID(r.Context()),
	})
	if err != nil {
		var rejection *entity.RejectionError
		if errors.As(err, &rejection) {
			middleware.RecordLead(string(channel), "rejected")
		}
		writeError(w, err)
		return
	}

	if out.Delivered {
		middleware.RecordLead(string(channel), "delivered")
	} else {
		middleware.RecordLead(string(channel), "failed")
		middleware.RecordCRMError(out.ErrorType)
	}

	if out.StatusCode == 0 {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: out.Error, Code: out.ErrorType})
		return
	}
	switch {
	case out.StatusCode < http.StatusOK:
		// informational answers cannot be relayed as a final response
		writeJSON(w, http.StatusBadGateway, DeliveryResponse{
			RequestID:    out.RequestID,
			Status:       out.StatusCode,
			Response:     out.Response,
			FailedLeadID: out.FailedLeadID,
		})
		return
	case out.StatusCode == http.StatusNoContent || out.StatusCode == http.StatusNotModified:
		w.WriteHeader(out.StatusCode)
		return
	}
	writeJSON(w, out.StatusCode, DeliveryResponse{
		RequestID:    out.RequestID,
		Status:       out.StatusCode,
		Response:     out.Response,
		FailedLeadID: out.FailedLeadID,
	})
}

func (h *LeadHandler) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.rateLimiter == nil || h.rateLimiter.Allow(getClientIP(r)) {
		return true
	}
	writeErrorResponse(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.")
	return false
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimiter is a fixed window counter per client.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type visitor struct {
	count     int
	lastReset time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go rl.cleanup(10 * time.Minute)
	return rl
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	now := rl.now()

	if !exists {
		rl.visitors[key] = &visitor{count: 1, lastReset: now}
		return true
	}

	if now.Sub(v.lastReset) > rl.window {
		v.count = 1
		v.lastReset = now
		return true
	}

	v.count++
	return v.count <= rl.limit
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
	<-rl.done
}

func (rl *RateLimiter) cleanup(every time.Duration) {
	defer close(rl.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *RateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastReset) > rl.window*2 {
			delete(rl.visitors, key)
		}
	}
}
