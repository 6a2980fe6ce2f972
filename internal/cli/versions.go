package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var versionsBranch string

var versionsCmd = &cobra.Command{
	Use:     "versions",
	Short:   "List versions available in the index",
	GroupID: "index",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := newInstaller().LoadIndex(context.Background())
		if err != nil {
			return err
		}
		versions := ix.Versions()
		if versionsBranch != "" {
			filtered := versions[:0]
			for _, v := range versions {
				if v == versionsBranch || hasBranchPrefix(v, versionsBranch) {
					filtered = append(filtered, v)
				}
			}
			versions = filtered
		}
		if jsonOutput {
			out := make(map[string]string, len(versions))
			for _, v := range versions {
				out[v] = ix[v]
			}
			return printJSON(out)
		}
		for _, v := range versions {
			PrintLabelValue(v, ix[v])
		}
		return nil
	},
}

func hasBranchPrefix(version string, branch string) bool {
	return len(version) > len(branch) && version[:len(branch)] == branch && version[len(branch)] == '.'
}

func init() {
	versionsCmd.Flags().StringVar(&versionsBranch, "branch", "", "Only show versions on this X.Y branch")
}
