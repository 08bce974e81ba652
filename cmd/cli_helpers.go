package cmd

import (
	"os"
	"path/filepath"

	"github.com/nlbuilder/forgehost/internal/config"
)

// resolveConfigPath returns the host config file path: $FORGEHOST_CONFIG if
// set, else ~/.forgehost/config.yaml.
func resolveConfigPath() string {
	if p := os.Getenv("FORGEHOST_CONFIG"); p != "" {
		return p
	}
	return config.ExpandHome(filepath.Join("~", ".forgehost", "config.yaml"))
}

// isManagedMode reports whether the loaded config selects managed
// (Postgres-backed) store mode over the standalone file store.
func isManagedMode() bool {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return false
	}
	return cfg.Database.Mode == "managed" && cfg.Database.PostgresDSN != ""
}
