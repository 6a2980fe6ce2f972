package cli

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List installed builds",
	GroupID: "builds",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		builds, err := newInstaller().Installed()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(builds)
		}
		if len(builds) == 0 {
			dimColor.Println("no builds installed")
			return nil
		}
		for _, b := range builds {
			PrintLabelValue(b.Version, b.Python)
		}
		return nil
	},
}
