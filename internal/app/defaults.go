package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that relocate symver's files.
const (
	EnvConfigPath = "SYMVER_CONFIG_PATH" // config file, default ~/.config/symver.toml
	EnvHome       = "SYMVER_HOME"        // data directory, default ~/.local/share/symver
)

// GetDefaults returns application default paths, checking environment variables first.
// Keys: config_path, base_dir, log_dir, db_dir.
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome(EnvConfigPath, ".config", "symver.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := fromEnvOrHome(EnvHome, ".local", "share", "symver")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"db_dir":      filepath.Join(baseDir, "db"),
	}, nil
}

// fromEnvOrHome returns the value of env when set, else the home directory
// joined with elem.
func fromEnvOrHome(env string, elem ...string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{home}, elem...)...), nil
}
