package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scrapebench/internal/server"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a Pub/Sub batch worker",
		Long: `Receives batch tasks from pubsub.task_subscription, scrapes each one with a
local pool sized by the threads value carried in the task and publishes the
results to pubsub.result_topic.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.BuildWorker(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build worker: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
