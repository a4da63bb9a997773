// Package cmd defines and implements the CLI commands for the scrapebench executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scrapebench/internal/config"
)

// cfgKeyType is the key for storing the loaded Config in the context.
type cfgKeyType string

const cfgKey cfgKeyType = "config"

// loadConfig is the config factory. It's a variable so tests can inject
// a config without touching disk or the environment.
var loadConfig = config.Load

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "scrapebench",
		Short: "Compare sequential, pooled and distributed email scraping.",
		Long: `scrapebench runs a search query through three execution strategies
(sequential, a bounded local pool, and batches fanned out to worker units),
scrapes the result pages for email addresses and reports how long each
strategy took and what resources it used.`,
		SilenceUsage: true,

		// Runs before every subcommand; loads config once and hands it down.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); SCRAPEBENCH_* environment variables override it")

	cmd.AddCommand(newServeCmd(), newCompareCmd(), newWorkerCmd())
	return cmd
}

func resolveConfig(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(cfgKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "scrapebench: %v\n", err)
		os.Exit(1)
	}
}
