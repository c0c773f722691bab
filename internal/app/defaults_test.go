package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaults(t *testing.T) {
	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/custom/config.toml")
		t.Setenv(EnvHome, "/custom/symver")

		defaults, err := GetDefaults()
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"config_path": "/custom/config.toml",
			"base_dir":    "/custom/symver",
			"log_dir":     "/custom/symver/log",
			"db_dir":      "/custom/symver/db",
		}, defaults)
	})

	t.Run("home directory fallback", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv(EnvHome, "")

		defaults, err := GetDefaults()
		require.NoError(t, err)

		home, err := os.UserHomeDir()
		require.NoError(t, err)
		base := filepath.Join(home, ".local", "share", "symver")

		assert.Equal(t, filepath.Join(home, ".config", "symver.toml"), defaults["config_path"])
		assert.Equal(t, base, defaults["base_dir"])
		assert.Equal(t, filepath.Join(base, "log"), defaults["log_dir"])
		assert.Equal(t, filepath.Join(base, "db"), defaults["db_dir"])
	})
}
