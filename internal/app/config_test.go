package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigFromLookup(t *testing.T) {
	env := map[string]string{
		"WIREBENCH_DEBUG":        "true",
		"WIREBENCH_STORAGE_PATH": " /tmp/wb ",
		"WIREBENCH_WORKSPACE":    "team",
	}
	cfg := configFromLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/tmp/wb", cfg.StoragePath)
	assert.Equal(t, "team", cfg.Workspace)
}

func TestConfigFromLookup_Defaults(t *testing.T) {
	cfg := configFromLookup(func(k string) (string, bool) {
		if k == "WIREBENCH_DEBUG" {
			return "maybe", true
		}
		return "", false
	})
	assert.Equal(t, DefaultConfig(), cfg)
}
