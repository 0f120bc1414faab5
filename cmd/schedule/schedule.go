// Package schedule implements the schedule command: cron-driven
// periodic pipeline runs.
package schedule

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/towncrier/cmd/common"
	"github.com/jonesrussell/towncrier/internal/pipeline"
)

// defaultSpec runs every day at 07:00.
const defaultSpec = "0 7 * * *"

// Command builds the schedule command.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	var (
		spec   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a cron schedule",
		Long: `Runs the full pipeline on a cron schedule until interrupted. Each run
includes the retention sweep, so history staleness is bounded by the
schedule cadence.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.Build(*cfgFile, *debug)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.Cfg.Validate(dryRun); err != nil {
				return err
			}

			p := deps.NewPipeline()
			ctx := cmd.Context()

			c := cron.New()
			_, err = c.AddFunc(spec, func() {
				summary, runErr := p.Run(ctx, pipeline.Options{DryRun: dryRun})
				if runErr != nil {
					deps.Log.Error("scheduled run failed", "error", runErr.Error())
					return
				}
				deps.Log.Info("scheduled run complete",
					"posted", summary.Posted,
					"duplicates", summary.Duplicates,
					"failed", summary.Failed,
				)
			})
			if err != nil {
				return fmt.Errorf("invalid cron spec %q: %w", spec, err)
			}

			deps.Log.Info("scheduler started", "spec", spec)
			c.Start()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				deps.Log.Info("shutting down", "signal", sig.String())
			case <-ctx.Done():
			}

			<-c.Stop().Done()

			return nil
		},
	}

	cmd.Flags().StringVar(&spec, "cron", defaultSpec, "cron schedule expression")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "analyze and log on each run, but do not post")

	return cmd
}
