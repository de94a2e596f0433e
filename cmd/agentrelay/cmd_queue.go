package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/agentrelay/internal/awsclient"
	"github.com/user/agentrelay/internal/queue"
)

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueCreateCmd)
	queueCreateCmd.Flags().String("name", "", "queue name (default queue.name)")
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the relay queue",
}

var queueCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the relay queue and its dead-letter queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = cfg.Queue.Name
		}
		client, err := awsclient.SQS(cmd.Context(), cfg.Queue.Region)
		if err != nil {
			return err
		}
		q, dlq, err := queue.NewProvisioner(client).Create(cmd.Context(), queue.Spec{
			Name:              name,
			DLQName:           cfg.Queue.DLQName,
			MaxReceiveCount:   cfg.Queue.MaxReceiveCount,
			VisibilityTimeout: cfg.Queue.VisibilityTimeout,
			RetentionPeriod:   cfg.Queue.RetentionPeriod,
		})
		if err != nil {
			return fmt.Errorf("create queue: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Queue:      %s\n", q.Name)
		fmt.Fprintf(out, "URL:        %s\n", q.URL)
		fmt.Fprintf(out, "ARN:        %s\n", q.ARN)
		fmt.Fprintf(out, "DLQ:        %s\n", dlq.Name)
		fmt.Fprintf(out, "DLQ ARN:    %s\n", dlq.ARN)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Set on the receiver function:")
		fmt.Fprintf(out, "SQS_QUEUE_URL=%s\n", q.URL)
		return nil
	},
}
