package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvPath names the environment variable that overrides the config location.
const EnvPath = "ARBITER_CONFIG"

// Path returns $ARBITER_CONFIG if set, otherwise ~/.arbiter/config.
func Path() (string, error) {
	if p := os.Getenv(EnvPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".arbiter", "config"), nil
}

// EnsureDir creates the directory that holds Path and returns Path.
func EnsureDir() (string, error) {
	path, err := Path()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return path, nil
}
