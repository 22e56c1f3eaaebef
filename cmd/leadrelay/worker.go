package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xavierca1/lead-relay/internal/infra/queue"
	"github.com/xavierca1/lead-relay/internal/infra/worker"
)

func workerCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued retry batches and run the scheduled retry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, c.cfg, true)
			if err != nil {
				return err
			}
			defer a.close()

			if c.cfg.RetryInterval > 0 {
				go worker.NewRetryWorker(a.retry, c.cfg.RetryInterval, c.cfg.RetryRemove).Start(ctx)
			}
			if a.rabbit == nil {
				if c.cfg.RetryInterval <= 0 {
					return errors.New("worker needs AMQP_URL or RETRY_INTERVAL")
				}
				<-ctx.Done()
				return nil
			}
			return queue.NewWorker(a.rabbit.Ch, a.retry).Start(ctx, queue.RetryQueue)
		},
	}
}
