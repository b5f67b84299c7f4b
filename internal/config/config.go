// Package config provides configuration loading and structs for the soroe engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Source    SourceConfig    `yaml:"source"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Sync      SyncConfig      `yaml:"sync"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TrackerConfig holds change-tracker persistence settings.
// Store is "sqlite" (default) or "file" (single JSON document).
type TrackerConfig struct {
	Store        string `yaml:"store"`
	DatabasePath string `yaml:"database_path"`
	FilePath     string `yaml:"file_path"`
}

// SourceConfig holds record source settings.
type SourceConfig struct {
	URL     string `yaml:"url"`
	Timeout int    `yaml:"timeout_seconds"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	CacheSize  int    `yaml:"cache_size"`
	Timeout    int    `yaml:"timeout_seconds"`
}

// IndexConfig holds vector index provider settings.
type IndexConfig struct {
	URL          string  `yaml:"url"`
	APIKey       string  `yaml:"api_key"`
	MaxBatchSize int     `yaml:"max_batch_size"`
	MaxAttempts  int     `yaml:"max_attempts"`
	BaseDelayMs  int     `yaml:"base_delay_ms"`
	RatePerSec   float64 `yaml:"rate_per_sec"`
	Timeout      int     `yaml:"timeout_seconds"`
}

// SyncConfig holds orchestration policy settings.
type SyncConfig struct {
	CycleTimeoutSeconds int `yaml:"cycle_timeout_seconds"`
	BatchTimeoutSeconds int `yaml:"batch_timeout_seconds"`
	Concurrency         int `yaml:"concurrency"`
	IntervalSeconds     int `yaml:"interval_seconds"`

	// Change-significance thresholds. When both are zero every detected
	// change is applied; otherwise an incremental cycle below both
	// thresholds is reported as skipped.
	MinChangedPercent float64 `yaml:"min_changed_percent"`
	MinChangedCount   int     `yaml:"min_changed_count"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Tracker.DatabasePath = expandPath(cfg.Tracker.DatabasePath, configDir)
	cfg.Tracker.FilePath = expandPath(cfg.Tracker.FilePath, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
