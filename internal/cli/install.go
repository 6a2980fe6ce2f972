package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:     "install <version>",
	Short:   "Download a CPython build into the install home",
	GroupID: "builds",
	Long: `Download and unpack a standalone CPython build.

The version may be a full X.Y.Z or a branch like 3.12, which resolves
to the newest 3.12.x listed in the index. Installing an already present
version is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		python, err := newInstaller().Ensure(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]string{"python": python})
		}
		PrintSuccess(fmt.Sprintf("Installed %s", python))
		return nil
	},
}
