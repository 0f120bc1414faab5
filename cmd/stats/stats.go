// Package stats implements the stats command: submission-history
// statistics for operator visibility.
package stats

import (
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/towncrier/cmd/common"
)

// Command builds the stats command.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show submission-history statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.Build(*cfgFile, *debug)
			if err != nil {
				return err
			}
			defer deps.Close()

			stats, err := deps.Submissions.Stats(cmd.Context())
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)

			t.AppendHeader(table.Row{"Metric", "Value"})
			t.AppendRow(table.Row{"Total records", stats.TotalRecords})
			t.AppendRow(table.Row{"Records in last week", stats.RecordsInWeek})

			sources := make([]string, 0, len(stats.BySource))
			for source := range stats.BySource {
				sources = append(sources, source)
			}
			sort.Strings(sources)
			for _, source := range sources {
				t.AppendRow(table.Row{"Source: " + source, stats.BySource[source]})
			}

			t.AppendRow(table.Row{"Store location", stats.StoreLocation})
			t.Render()

			return nil
		},
	}
}
