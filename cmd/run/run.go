// Package run implements the run command: one full scrape-analyze-post
// cycle.
package run

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/towncrier/cmd/common"
	"github.com/jonesrussell/towncrier/internal/pipeline"
)

// Command builds the run command.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	var (
		dryRun     bool
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scrape, analyze, and post cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.Build(*cfgFile, *debug)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.Cfg.Validate(dryRun); err != nil {
				return err
			}

			summary, err := deps.NewPipeline().Run(cmd.Context(), pipeline.Options{
				DryRun:     dryRun,
				OutputPath: outputPath,
			})
			if err != nil {
				return fmt.Errorf("pipeline: %w", err)
			}

			deps.Log.Info("run summary",
				"pages_scraped", summary.PagesScraped,
				"analyzed", summary.Analyzed,
				"candidates", summary.Candidates,
				"duplicates", summary.Duplicates,
				"posted", summary.Posted,
				"failed", summary.Failed,
				"dry_run", dryRun,
			)

			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "analyze and log, but do not post")
	cmd.Flags().StringVar(&outputPath, "output", "", "write analyzed articles to a TOML file")

	return cmd
}
