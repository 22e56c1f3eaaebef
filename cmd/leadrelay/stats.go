package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func statsCommand(c *cli) *cobra.Command {
	var dashboard bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print lead counts from the event log and the failed store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if dashboard {
				d, err := a.reports.Dashboard(cmd.Context())
				if err != nil {
					return err
				}
				return enc.Encode(d)
			}
			s, err := a.reports.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return enc.Encode(s)
		},
	}
	cmd.Flags().BoolVar(&dashboard, "dashboard", false, "print counts per source and per error type")
	return cmd
}
