package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Helper to clear all config-related env vars
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"EXPOSURE_PORT",
		"EXPOSURE_READ_TIMEOUT",
		"EXPOSURE_WRITE_TIMEOUT",
		"EXPOSURE_SHUTDOWN_TIMEOUT",
		"EXPOSURE_DB_PATH",
		"EXPOSURE_BATCH_BASE_URL",
		"EXPOSURE_BATCH_INDEX_PATH",
		"EXPOSURE_DOWNLOAD_DIR",
		"EXPOSURE_RECENT_HOURS",
		"EXPOSURE_S3_ENDPOINT",
		"EXPOSURE_S3_BUCKET",
		"EXPOSURE_S3_REGION",
		"EXPOSURE_S3_ACCESS_KEY",
		"EXPOSURE_S3_SECRET_KEY",
		"EXPOSURE_ENGINE_VENDOR",
		"EXPOSURE_NEARBY_URL",
		"EXPOSURE_CONTACTSHIELD_URL",
		"EXPOSURE_SYNC_INTERVAL",
		"EXPOSURE_LOG_LEVEL",
		"EXPOSURE_LOG_FORMAT",
		"EXPOSURE_CONFIG_PATH",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "exposure.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "batch:\n  base_url: https://cdn.example.test\n")
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 8090 {
		t.Errorf("default port = %d, want 8090", cfg.Server.Port)
	}
	if cfg.Batch.RecentHours != 24 {
		t.Errorf("default recent_hours = %d, want 24", cfg.Batch.RecentHours)
	}
	if cfg.Sync.FullBatchDays != 7 {
		t.Errorf("default full_batch_days = %d, want 7", cfg.Sync.FullBatchDays)
	}
	if time.Duration(cfg.Sync.Interval) != time.Hour {
		t.Errorf("default sync interval = %v, want 1h", time.Duration(cfg.Sync.Interval))
	}
	if len(cfg.Sync.Categories) != 2 {
		t.Errorf("default categories = %v, want yellow and red", cfg.Sync.Categories)
	}
}

func TestLoadFromFile_YAMLOverrides(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, strings.TrimSpace(`
server:
  port: 9999
batch:
  base_url: https://cdn.example.test
  recent_hours: 48
sync:
  interval: 30m
  categories: [red]
`))
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Batch.RecentHours != 48 {
		t.Errorf("recent_hours = %d, want 48", cfg.Batch.RecentHours)
	}
	if time.Duration(cfg.Sync.Interval) != 30*time.Minute {
		t.Errorf("sync interval = %v, want 30m", time.Duration(cfg.Sync.Interval))
	}
}

func TestLoadFromFile_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("EXPOSURE_PORT", "7070")
	t.Setenv("EXPOSURE_S3_ACCESS_KEY", "ak")
	t.Setenv("EXPOSURE_S3_SECRET_KEY", "sk")

	path := writeConfig(t, "server:\n  port: 9999\nbatch:\n  base_url: https://cdn.example.test\n")
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("env override lost: port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Batch.S3.AccessKey != "ak" || cfg.Batch.S3.SecretKey != "sk" {
		t.Error("S3 credentials should come from env")
	}
}

func TestLoadFromFile_RequiresSource(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "log:\n  level: debug\n")
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error when neither base_url nor s3 bucket configured")
	}
}

func TestLoadFromFile_RejectsUnknownVendor(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, strings.TrimSpace(`
batch:
  base_url: https://cdn.example.test
engine:
  vendor: bogus
`))
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for unknown engine vendor")
	}
}

func TestLoadFromFile_InvalidDuration(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "batch:\n  base_url: x\nsync:\n  interval: soon\n")
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for invalid duration string")
	}
}
