package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rexologue/pyindex-operator/internal/installer"
	"github.com/rexologue/pyindex-operator/internal/logging"
)

func newInstaller() *installer.Installer {
	home := flagHome
	if home == "" {
		home = defaultHome()
	}
	inst := installer.New(indexURL(), home)
	if os.Getenv("PYINDEX_DEBUG") != "" {
		inst.Logger = logging.BuildLogger("debug", "text")
	}
	return inst
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
