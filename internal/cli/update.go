package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:     "update",
	Short:   "Refresh the cached copy of the index",
	GroupID: "index",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inst := newInstaller()
		if err := inst.InvalidateCache(); err != nil {
			return err
		}
		ix, err := inst.RefreshIndex(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]int{"versions": len(ix)})
		}
		PrintSuccess(fmt.Sprintf("Index updated: %d versions", len(ix)))
		return nil
	},
}
