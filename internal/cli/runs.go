package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rexologue/pyindex-operator/internal/catalog"
)

var (
	runsCatalogPath string
	runsLimit       int
)

var runsCmd = &cobra.Command{
	Use:     "runs",
	Short:   "Show recent refresh runs from the catalog",
	GroupID: "index",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsCatalogPath == "" {
			return fmt.Errorf("--catalog is required")
		}
		cat, err := catalog.Open(runsCatalogPath)
		if err != nil {
			return err
		}
		defer func() { _ = cat.Close() }()

		runs, err := cat.RecentRuns(context.Background(), runsLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(runs)
		}
		if len(runs) == 0 {
			dimColor.Println("no runs recorded")
			return nil
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s  %-9s %-8s total=%d +%d ~%d -%d",
				r.StartedAt.Format(time.RFC3339), r.Status, r.Trigger,
				r.Total, r.Added, r.Changed, r.Removed)
			switch r.Status {
			case catalog.StatusFailed:
				PrintError(line + "  " + r.Error)
			case catalog.StatusChanged:
				PrintSuccess(line)
			default:
				fmt.Println("  " + line)
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsCatalogPath, "catalog", "", "Path to the refresh catalog database")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to show")
}
