package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultIndexURL = "https://raw.githubusercontent.com/rexologue/pyindex/main/index.json"

var (
	// Global flags
	flagIndexURL string
	flagHome     string
	jsonOutput   bool
)

// rootCmd is the root command for pyindex.
var rootCmd = &cobra.Command{
	Use:     "pyindex",
	Version: "dev",
	Short:   "Install isolated CPython builds from a published index",
	Long: `pyindex downloads standalone CPython builds listed in index.json,
keeps them under a local home directory, and can point poetry projects
at them. The index itself is maintained by the refresh service.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func defaultHome() string {
	if home := os.Getenv("PYINDEX_HOME"); home != "" {
		return home
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".pyindex")
	}
	return ".pyindex"
}

func indexURL() string {
	if flagIndexURL != "" {
		return flagIndexURL
	}
	if url := os.Getenv("PYINDEX_INDEX_URL"); url != "" {
		return url
	}
	return defaultIndexURL
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagIndexURL, "index-url", "", "Override the index.json URL")
	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "Override the install home directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "builds",
		Title: "Managing Builds:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "index",
		Title: "Index Operations:",
	})

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(useCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(runsCmd)
}
