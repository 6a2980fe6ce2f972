package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var useCmd = &cobra.Command{
	Use:     "use <version>",
	Short:   "Point the current poetry project at a build",
	GroupID: "builds",
	Long: `Ensure a CPython build is installed and run "poetry env use" with
its python binary, so the current project picks it up.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		python, err := newInstaller().Use(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]string{"python": python})
		}
		PrintSuccess(fmt.Sprintf("Using %s", python))
		return nil
	},
}
