package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// API configuration
	API APIConfig `json:"api"`

	// Storage paths
	Storage StorageConfig `json:"storage"`

	// Sync behavior
	Sync SyncConfig `json:"sync"`

	// Logging
	Log LogConfig `json:"log"`
}

// APIConfig for server communication.
type APIConfig struct {
	BaseURL      string        `json:"base_url"`
	Timeout      time.Duration `json:"timeout"`
	MaxRetries   int           `json:"max_retries"`
	UserAgent    string        `json:"user_agent"`
	Token        string        `json:"token,omitempty"`
	PresencePath string        `json:"presence_path"` // websocket endpoint for connectivity probing
}

// StorageConfig for local data paths.
type StorageConfig struct {
	DataDir      string `json:"data_dir"`      // Base directory for all data
	DatabaseFile string `json:"database_file"` // SQLite cache database
}

// SyncConfig for reconciliation behavior.
type SyncConfig struct {
	MaxItemRetries int           `json:"max_item_retries"` // Drains before an item is parked
	ReconnectMin   time.Duration `json:"reconnect_min"`    // Initial presence reconnect delay
	ReconnectMax   time.Duration `json:"reconnect_max"`    // Cap for presence reconnect delay
	DrainOnEnqueue bool          `json:"drain_on_enqueue"` // Trigger a drain after each online enqueue
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
	File   string `json:"file"`   // Log file path (empty = stdout)
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".possync"

	return &Config{
		API: APIConfig{
			BaseURL:      "http://localhost:8080/api",
			Timeout:      30 * time.Second,
			MaxRetries:   3,
			UserAgent:    "possync/1.0",
			PresencePath: "/ws/presence",
		},
		Storage: StorageConfig{
			DataDir:      dataDir,
			DatabaseFile: filepath.Join(dataDir, "cache.db"),
		},
		Sync: SyncConfig{
			MaxItemRetries: 3,
			ReconnectMin:   time.Second,
			ReconnectMax:   60 * time.Second,
			DrainOnEnqueue: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.Storage.DatabaseFile == "" {
		return errors.New("storage.database_file is required")
	}

	if c.Sync.MaxItemRetries < 0 {
		return errors.New("sync.max_item_retries must not be negative")
	}

	if c.Sync.ReconnectMin <= 0 || c.Sync.ReconnectMax < c.Sync.ReconnectMin {
		return errors.New("sync reconnect delays must satisfy 0 < min <= max")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		filepath.Dir(c.Storage.DatabaseFile),
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
