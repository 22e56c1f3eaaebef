package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xavierca1/lead-relay/internal/config"
	"github.com/xavierca1/lead-relay/internal/infra/http/handlers"
	"github.com/xavierca1/lead-relay/internal/infra/queue"
	"github.com/xavierca1/lead-relay/internal/infra/worker"
)

func serveCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook, form and retry HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, c.cfg, true)
			if err != nil {
				return err
			}
			defer a.close()

			var publisher handlers.RetryPublisher
			if a.producer != nil {
				publisher = a.producer
				go func() {
					if err := queue.NewWorker(a.rabbit.Ch, a.retry).Start(ctx, queue.RetryQueue); err != nil {
						logrus.WithError(err).Error("retry queue consumer stopped")
					}
				}()
			}
			if c.cfg.RetryInterval > 0 {
				go worker.NewRetryWorker(a.retry, c.cfg.RetryInterval, c.cfg.RetryRemove).Start(ctx)
			}

			leads := handlers.NewLeadHandler(a.ingest, c.cfg.RateLimit)
			defer leads.Close()

			var downloads *handlers.DownloadHandler
			if c.cfg.Store.Backend == config.StoreBackendCSV {
				downloads = handlers.NewDownloadHandler(c.cfg.Store.LeadsLogPath, c.cfg.Store.FailedLeadsPath)
			}

			router := handlers.NewRouter(handlers.RouterConfig{
				Leads:          leads,
				Reports:        handlers.NewReportsHandler(a.reports),
				Retry:          handlers.NewRetryHandler(a.retry, publisher),
				Health:         handlers.NewHealthHandler(version, a.checks),
				Downloads:      downloads,
				AllowedOrigins: c.cfg.AllowedOrigins,
			})
			srv := &http.Server{
				Addr:              ":" + c.cfg.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logrus.WithField("addr", srv.Addr).Info("lead relay listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logrus.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
