package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xavierca1/lead-relay/internal/infra/http/middleware"
)

type RouterConfig struct {
	Leads          *LeadHandler
	Reports        *ReportsHandler
	Retry          *RetryHandler
	Health         *HealthHandler
	Downloads      *DownloadHandler // nil unless the stores are CSV files
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
	}))

	r.Post("/webhook", cfg.Leads.Webhook)
	r.Post("/webhook/{channel}", cfg.Leads.Webhook)
	r.Post("/form", cfg.Leads.Form)

	r.Get("/logs", cfg.Reports.Logs)
	r.Get("/failed-logs", cfg.Reports.FailedLogs)
	r.Post("/failed-logs/retry", cfg.Retry.Handle)
	r.Get("/api/stats", cfg.Reports.Stats)
	r.Get("/api/dashboard", cfg.Reports.Dashboard)

	if cfg.Downloads != nil {
		r.Get("/download-log", cfg.Downloads.LeadsLog)
		r.Get("/download-failed-log", cfg.Downloads.FailedLeads)
	}

	r.Get("/health", cfg.Health.Handle)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
