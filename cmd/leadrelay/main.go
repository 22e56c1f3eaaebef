package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xavierca1/lead-relay/internal/config"
)

const version = "1.0.0"

type cli struct {
	envFile string
	cfg     *config.Config
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

func (c *cli) preRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return err
	}
	cfg.ConfigureLogger()
	c.cfg = cfg
	return nil
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "leadrelay",
		Short:         "Relay marketing leads to Salesforce and retry the ones that fail",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.envFile, "env", ".env", "dotenv file loaded before reading the environment")
	root.PersistentPreRunE = c.preRun

	root.AddCommand(serveCommand(c))
	root.AddCommand(retryCommand(c))
	root.AddCommand(workerCommand(c))
	root.AddCommand(statsCommand(c))
	return root
}

func main() {
	defer recoverPanic()

	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("leadrelay failed")
		os.Exit(1)
	}
}
