// Package cmd implements the command-line interface for towncrier.
package cmd

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/towncrier/cmd/purge"
	"github.com/jonesrussell/towncrier/cmd/run"
	"github.com/jonesrussell/towncrier/cmd/schedule"
	"github.com/jonesrussell/towncrier/cmd/stats"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// debug enables debug logging for all commands.
	debug bool

	rootCmd = &cobra.Command{
		Use:   "towncrier",
		Short: "Scrape local news and post it to the discussion board",
		Long: `towncrier scrapes configured local-news sites, selects stories about
the configured town, filters out duplicates, and posts the survivors to
the discussion board.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so credentials are available to every command.
	_ = godotenv.Load()

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.toml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(run.Command(&cfgFile, &debug))
	rootCmd.AddCommand(stats.Command(&cfgFile, &debug))
	rootCmd.AddCommand(purge.Command(&cfgFile, &debug))
	rootCmd.AddCommand(schedule.Command(&cfgFile, &debug))
}
