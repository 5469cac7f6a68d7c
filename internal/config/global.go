package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigFileName is the config file inside the shipyard home directory.
const ConfigFileName = "config.yaml"

// HomeDir returns the shipyard home directory. SHIPYARD_HOME overrides the
// default of ~/.shipyard.
func HomeDir() (string, error) {
	if dir := os.Getenv("SHIPYARD_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(homeDir, ".shipyard"), nil
}

// EnsureDirs creates the storage directories and the parents of every
// file path in cfg.
func EnsureDirs(cfg *Config) error {
	dirs := []string{
		cfg.Storage.ProjectsDir,
		cfg.Storage.StateDir,
		filepath.Dir(cfg.Storage.DBPath),
		filepath.Dir(cfg.Daemon.HealthSocket),
		filepath.Dir(cfg.Daemon.PIDFile),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(homeDir, p[1:])
}
