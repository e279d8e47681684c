package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"async-chat-broker/internal/client"
	"async-chat-broker/internal/models"
)

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Submit a message asynchronously and poll until the reply arrives",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, _ := cmd.Flags().GetString("chat")
		userID, _ := cmd.Flags().GetString("user")
		model, _ := cmd.Flags().GetString("model")
		interval, _ := cmd.Flags().GetDuration("interval")
		maxWait, _ := cmd.Flags().GetDuration("timeout")

		c := newClient()
		ctx := cmd.Context()
		ack, err := c.Submit(ctx, client.SubmitRequest{
			Messages: []client.Message{{Role: string(models.RoleUser), Content: strings.Join(args, " ")}},
			ChatID:   chatID,
			UserID:   userID,
			Model:    model,
		})
		if err != nil {
			return err
		}
		logger.Debug().Str("job_id", ack.JobID).Msg("submitted")

		p := client.NewPoller(c)
		p.Interval = interval
		p.MaxWait = maxWait
		p.OnStatusChange = func(v models.JobView) {
			logger.Debug().Str("job_id", v.JobID).Str("status", string(v.Status)).
				Int64("processing_ms", v.ProcessingTime).Msg("status changed")
		}
		out, err := p.Run(ctx, ack.JobID)
		if err != nil {
			return fmt.Errorf("job %s: %w", ack.JobID, err)
		}
		if out.Canceled {
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Response)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <jobId>",
	Short: "Print a job status snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := newClient().Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	sendCmd.Flags().String("chat", "cli", "chat id")
	sendCmd.Flags().String("user", "chatctl", "user id")
	sendCmd.Flags().String("model", "default", "model name forwarded to the engine")
	sendCmd.Flags().Duration("interval", client.DefaultInterval, "polling interval")
	sendCmd.Flags().Duration("timeout", client.DefaultMaxWait, "maximum time to wait for the reply")
}
