// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigOrDefault_NoFile(t *testing.T) {
	cfg := LoadConfigOrDefault("")
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.Processing.MaxSizeMB != 50 {
		t.Errorf("expected default max_size_mb=50, got %d", cfg.Processing.MaxSizeMB)
	}
}

func TestLoadConfigOrDefault_NonexistentFile(t *testing.T) {
	cfg := LoadConfigOrDefault("/nonexistent/path/config.yaml")
	if cfg == nil {
		t.Fatal("expected non-nil config (fallback to defaults)")
	}
}

func TestLoadConfigOrDefault_ValidFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
directories:
  processing: /data/in
  processed: /data/processed
  signed: /data/signed
  error: /data/error
  keys: /data/keys
processing:
  max_size_mb: 25
  max_pages: 10
  processing_timeout_seconds: 15
detection:
  use_ner: true
worker:
  pool_size: 2
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := LoadConfigOrDefault(configPath)
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.Directories.Processing != "/data/in" {
		t.Errorf("expected processing dir=/data/in, got %q", cfg.Directories.Processing)
	}
	if cfg.Processing.MaxSizeMB != 25 {
		t.Errorf("expected max_size_mb=25, got %d", cfg.Processing.MaxSizeMB)
	}
	if !cfg.Detection.UseNER {
		t.Error("expected use_ner=true")
	}
	if cfg.Worker.PoolSize != 2 {
		t.Errorf("expected pool_size=2, got %d", cfg.Worker.PoolSize)
	}
}

func TestLoadConfigOrDefault_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.yaml")

	if err := os.WriteFile(configPath, []byte(":::invalid yaml:::"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Should fall back to defaults, not panic
	cfg := LoadConfigOrDefault(configPath)
	if cfg == nil {
		t.Fatal("expected non-nil config (fallback to defaults on parse error)")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Directories.Processing != "./data/processing" {
		t.Errorf("expected default processing dir, got %q", cfg.Directories.Processing)
	}
	if cfg.Processing.MaxPages != 50 {
		t.Errorf("expected default max_pages=50, got %d", cfg.Processing.MaxPages)
	}
	if cfg.Worker.PoolSize != 4 {
		t.Errorf("expected default pool_size=4, got %d", cfg.Worker.PoolSize)
	}
}

func TestValidateConfig_RejectsMissingDirectory(t *testing.T) {
	cfg := defaultConfig()
	cfg.Directories.Signed = ""
	if err := ValidateConfig(cfg); err == nil {
		t.Error("expected validation error for empty signed directory")
	}
}

func TestValidateConfig_RejectsZeroPoolSize(t *testing.T) {
	cfg := defaultConfig()
	cfg.Worker.PoolSize = 0
	if err := ValidateConfig(cfg); err == nil {
		t.Error("expected validation error for zero worker pool size")
	}
}

func TestEnvOverride_MaxSizeMB(t *testing.T) {
	t.Setenv("SECUREDOC_MAX_SIZE_MB", "99")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Processing.MaxSizeMB != 99 {
		t.Errorf("expected env override max_size_mb=99, got %d", cfg.Processing.MaxSizeMB)
	}
}
