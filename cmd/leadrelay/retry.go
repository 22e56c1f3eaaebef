package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

func retryCommand(c *cli) *cobra.Command {
	var (
		selection string
		input     usecase.RetryInput
		async     bool
	)
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Resend failed leads once and print the batch result",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := entity.ParseSelection(selection)
			if err != nil {
				return err
			}
			input.Selection = sel
			if len(input.IDs) > 0 && selection == "" {
				input.Selection = entity.SelectIDs
			}
			if err := input.Validate(); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), c.cfg, true)
			if err != nil {
				return err
			}
			defer a.close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			if async && a.producer != nil {
				if err := a.producer.PublishRetry(cmd.Context(), input); err != nil {
					return err
				}
				return enc.Encode(map[string]string{"status": "queued"})
			}

			out, err := a.retry.Execute(cmd.Context(), input)
			if err != nil {
				return err
			}
			return enc.Encode(out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&selection, "selection", "", "all, unsent, failed or ids (default all, ids when --ids is set)")
	f.Int64SliceVar(&input.IDs, "ids", nil, "failed lead ids to resend")
	f.BoolVar(&input.MarkSent, "mark-sent", true, "set the sent flag on delivered leads")
	f.BoolVar(&input.RemoveSuccessful, "remove-successful", false, "drop delivered leads from the failed store")
	f.StringVar(&input.Campaign, "campaign", "", "only leads of this campaign")
	f.StringVar(&input.Source, "source", "", "only leads of this source")
	f.StringVar(&input.ErrorType, "error-type", "", "only leads with this error type")
	f.BoolVar(&async, "async", false, "queue the batch on RabbitMQ instead of running it")
	return cmd
}
