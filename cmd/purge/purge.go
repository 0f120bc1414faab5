// Package purge implements the purge command: an explicit retention
// sweep over both history stores.
package purge

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/towncrier/cmd/common"
)

// Command builds the purge command.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	var (
		scrapeDays     int
		submissionDays int
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete history records past their retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.Build(*cfgFile, *debug)
			if err != nil {
				return err
			}
			defer deps.Close()

			if scrapeDays == 0 {
				scrapeDays = deps.Cfg.News.ScrapeRetentionDays
			}
			if submissionDays == 0 {
				submissionDays = deps.Cfg.Board.SubmissionRetentionDays
			}

			scrapesDeleted, err := deps.Scrapes.PurgeOlderThan(cmd.Context(), scrapeDays)
			if err != nil {
				return err
			}

			submissionsDeleted, err := deps.Submissions.PurgeOlderThan(cmd.Context(), submissionDays)
			if err != nil {
				return err
			}

			deps.Log.Info("purge complete",
				"scrape_records_deleted", scrapesDeleted,
				"scrape_retention_days", scrapeDays,
				"submission_records_deleted", submissionsDeleted,
				"submission_retention_days", submissionDays,
			)

			return nil
		},
	}

	cmd.Flags().IntVar(&scrapeDays, "scrape-days", 0, "scrape history retention in days (default from config)")
	cmd.Flags().IntVar(&submissionDays, "submission-days", 0, "submission history retention in days (default from config)")

	return cmd
}
