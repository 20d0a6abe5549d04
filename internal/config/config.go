// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the pipeline's YAML configuration file and applies
// environment-variable overrides on top of it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pipeline configuration.
type Config struct {
	// Directories holds the four watched/managed directories plus the
	// signing-key directory.
	Directories DirectoriesConfig `yaml:"directories"`

	// Database configures the audit store.
	Database DatabaseConfig `yaml:"database"`

	Processing ProcessingConfig `yaml:"processing"`

	Detection DetectionConfig `yaml:"detection"`

	Worker WorkerConfig `yaml:"worker"`

	Server ServerConfig `yaml:"server"`

	// Debug turns on verbose, step-by-step observability output.
	Debug bool `yaml:"debug"`
}

// DirectoriesConfig names the four directories the pipeline moves files
// between, plus where the signing key lives.
type DirectoriesConfig struct {
	Processing string `yaml:"processing"` // incoming, watched directory
	Processed  string `yaml:"processed"`  // created with the layout; no pipeline stage writes into it
	Signed     string `yaml:"signed"`     // redacted + signed output
	Error      string `yaml:"error"`      // rejected/failed files
	Keys       string `yaml:"keys"`       // ECDSA signing key PEM
}

// DatabaseConfig configures the SQLite audit store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ProcessingConfig bounds a single job's validation and execution.
type ProcessingConfig struct {
	MaxSizeMB                int64 `yaml:"max_size_mb"`
	MaxPages                 int   `yaml:"max_pages"`
	ProcessingTimeoutSecs    int   `yaml:"processing_timeout_seconds"`
	WatchDebounceMillis      int   `yaml:"watch_debounce_millis"`
	OCRMinNativeCharsPerPage int   `yaml:"ocr_min_native_chars_per_page"`
	OCRDPI                   int   `yaml:"ocr_dpi"`
}

// DetectionConfig controls which entity detectors run.
type DetectionConfig struct {
	UseNER bool `yaml:"use_ner"`
}

// WorkerConfig sizes the job-level worker pool.
type WorkerConfig struct {
	PoolSize int `yaml:"pool_size"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// defaultConfig returns a Config populated with the pipeline's built-in
// defaults, before any file or environment overrides are applied.
func defaultConfig() *Config {
	return &Config{
		Directories: DirectoriesConfig{
			Processing: "./data/processing",
			Processed:  "./data/processed",
			Signed:     "./data/signed",
			Error:      "./data/error",
			Keys:       "./data/keys",
		},
		Database: DatabaseConfig{
			Path: "./data/audit.db",
		},
		Processing: ProcessingConfig{
			MaxSizeMB:                50,
			MaxPages:                 50,
			ProcessingTimeoutSecs:    30,
			WatchDebounceMillis:      1500,
			OCRMinNativeCharsPerPage: 20,
			OCRDPI:                   300,
		},
		Detection: DetectionConfig{
			UseNER: false,
		},
		Worker: WorkerConfig{
			PoolSize: 4,
		},
		Server: ServerConfig{
			Enabled: true,
			Address: ":8080",
		},
		Debug: false,
	}
}

// LoadConfig loads configuration from the specified file path. An empty
// path returns the built-in defaults. Environment variables are applied
// on top of either source.
func LoadConfig(configPath string) (*Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		cleanPath := filepath.Clean(configPath)
		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides layers SECUREDOC_* environment variables on top of
// the file/default configuration: env wins over file, file wins over
// built-in default.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SECUREDOC_PROCESSING_DIR"); v != "" {
		cfg.Directories.Processing = v
	}
	if v := os.Getenv("SECUREDOC_PROCESSED_DIR"); v != "" {
		cfg.Directories.Processed = v
	}
	if v := os.Getenv("SECUREDOC_SIGNED_DIR"); v != "" {
		cfg.Directories.Signed = v
	}
	if v := os.Getenv("SECUREDOC_ERROR_DIR"); v != "" {
		cfg.Directories.Error = v
	}
	if v := os.Getenv("SECUREDOC_KEYS_DIR"); v != "" {
		cfg.Directories.Keys = v
	}
	if v := os.Getenv("SECUREDOC_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SECUREDOC_MAX_SIZE_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Processing.MaxSizeMB = n
		}
	}
	if v := os.Getenv("SECUREDOC_USE_NER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Detection.UseNER = b
		}
	}
	if v := os.Getenv("SECUREDOC_WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.PoolSize = n
		}
	}
	if v := os.Getenv("SECUREDOC_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SECUREDOC_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

// FindConfigFile looks for a configuration file in the current directory.
func FindConfigFile() string {
	for _, name := range []string{"config.yaml", "config.yml", ".secure-doc-ai.yaml", ".secure-doc-ai.yml"} {
		if fileExists(name) {
			return name
		}
	}
	return ""
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}

// ValidateConfig checks that the configuration is internally consistent.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if cfg.Processing.MaxSizeMB <= 0 {
		return fmt.Errorf("processing.max_size_mb must be positive, got %d", cfg.Processing.MaxSizeMB)
	}
	if cfg.Processing.MaxPages <= 0 {
		return fmt.Errorf("processing.max_pages must be positive, got %d", cfg.Processing.MaxPages)
	}
	if cfg.Processing.ProcessingTimeoutSecs <= 0 {
		return fmt.Errorf("processing.processing_timeout_seconds must be positive, got %d", cfg.Processing.ProcessingTimeoutSecs)
	}
	if cfg.Worker.PoolSize <= 0 {
		return fmt.Errorf("worker.pool_size must be positive, got %d", cfg.Worker.PoolSize)
	}
	for name, dir := range map[string]string{
		"directories.processing": cfg.Directories.Processing,
		"directories.processed":  cfg.Directories.Processed,
		"directories.signed":     cfg.Directories.Signed,
		"directories.error":      cfg.Directories.Error,
		"directories.keys":       cfg.Directories.Keys,
	} {
		if dir == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	return nil
}

// LoadConfigOrDefault loads configuration from configFile (or searches
// standard locations when configFile is empty). If loading fails, it
// returns the built-in defaults.
func LoadConfigOrDefault(configFile string) *Config {
	configPath := configFile
	if configPath == "" {
		configPath = FindConfigFile()
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		// Fall back to defaults — callers should not crash on a missing/bad config file.
		cfg, _ = LoadConfig("")
	}
	return cfg
}
