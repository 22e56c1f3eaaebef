package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

type ReportsReader interface {
	Stats(ctx context.Context) (*usecase.LeadStats, error)
	Dashboard(ctx context.Context) (*usecase.Dashboard, error)
	Logs(ctx context.Context, filter entity.EventLogFilter) (*usecase.LogsView, error)
	FailedLogs(ctx context.Context, filter entity.FailedLeadFilter) (*usecase.FailedLogsView, error)
}

type ReportsHandler struct {
	Reports ReportsReader
}

func NewReportsHandler(reports ReportsReader) *ReportsHandler {
	return &ReportsHandler{Reports: reports}
}

var fromDateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

func parseFromDate(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	for _, layout := range fromDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, true
		}
	}
	return nil, false
}

// Logs handles GET /logs?campaign=&source=&from_date=.
func (h *ReportsHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, ok := parseFromDate(q.Get("from_date"))
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_DATE", "from_date must be YYYY-MM-DD or RFC3339")
		return
	}

	view, err := h.Reports.Logs(r.Context(), entity.EventLogFilter{
		Campaign: q.Get("campaign"),
		Source:   q.Get("source"),
		From:     from,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// FailedLogs handles GET /failed-logs?error_type=&campaign=&source=.
func (h *ReportsHandler) FailedLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := h.Reports.FailedLogs(r.Context(), entity.FailedLeadFilter{
		ErrorType: q.Get("error_type"),
		Campaign:  q.Get("campaign"),
		Source:    q.Get("source"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ReportsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Reports.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *ReportsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.Reports.Dashboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}
