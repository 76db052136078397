package app

import (
	"os"
	"strconv"
	"strings"
)

// DefaultWorkspaceName is loaded when no workspace is configured.
const DefaultWorkspaceName = "default"

// Config holds application-wide configuration.
type Config struct {
	// Debug enables debug logging and additional diagnostics
	Debug bool

	// StoragePath is the directory where workspaces, history and settings
	// are stored. Empty means storage.DefaultStoragePath().
	StoragePath string

	// Workspace names the workspace to load and save.
	Workspace string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{Workspace: DefaultWorkspaceName}
}

// ConfigFromEnv creates a configuration from WIREBENCH_DEBUG,
// WIREBENCH_STORAGE_PATH and WIREBENCH_WORKSPACE.
func ConfigFromEnv() *Config {
	return configFromLookup(os.LookupEnv)
}

func configFromLookup(lookup func(string) (string, bool)) *Config {
	cfg := DefaultConfig()

	if v, ok := lookup("WIREBENCH_DEBUG"); ok {
		if debug, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Debug = debug
		}
	}
	if v, ok := lookup("WIREBENCH_STORAGE_PATH"); ok && strings.TrimSpace(v) != "" {
		cfg.StoragePath = strings.TrimSpace(v)
	}
	if v, ok := lookup("WIREBENCH_WORKSPACE"); ok && strings.TrimSpace(v) != "" {
		cfg.Workspace = strings.TrimSpace(v)
	}

	return cfg
}
