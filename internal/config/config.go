// Package config manages CostGuard global configuration.
// Per-workspace remediation settings live in the workspace database; this
// package only covers the operator-level config file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	ConfigDirName   = ".costguard"
	ConfigFileName  = "config.json"
	DefaultLogLevel = "info"
)

// GlobalConfig holds user-level configuration for the CostGuard CLI.
type GlobalConfig struct {
	DefaultAWSRegion string `json:"default_aws_region"`
	LogLevel         string `json:"log_level"`
	ActiveWorkspace  string `json:"active_workspace"`     // UUID of last-used workspace
	WorkspacesDir    string `json:"workspaces_dir"`       // Base directory for workspaces
	AWSAPIRatePerSec int    `json:"aws_api_rate_per_sec"` // per-service AWS call rate
}

// DefaultGlobalConfig returns sensible defaults.
func DefaultGlobalConfig() GlobalConfig {
	home, _ := os.UserHomeDir()
	return GlobalConfig{
		DefaultAWSRegion: "us-east-1",
		LogLevel:         DefaultLogLevel,
		WorkspacesDir:    filepath.Join(home, ConfigDirName, "workspaces"),
		AWSAPIRatePerSec: 10,
	}
}

// ConfigDir returns the global CostGuard config directory path.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ConfigDirName)
}

// LoadGlobalConfig loads the global config from ~/.costguard/config.json.
func LoadGlobalConfig() (GlobalConfig, error) {
	path := filepath.Join(ConfigDir(), ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultGlobalConfig(), nil
		}
		return GlobalConfig{}, err
	}

	cfg := DefaultGlobalConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return GlobalConfig{}, err
	}
	return cfg, nil
}

// SaveGlobalConfig persists the global config to ~/.costguard/config.json.
func SaveGlobalConfig(cfg GlobalConfig) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, ConfigFileName), data, 0600)
}
