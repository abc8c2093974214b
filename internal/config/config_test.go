package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadAppliesFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stride.toml")
	content := `
[podcasts]
default_episode_limit = 8

[downloads]
max_concurrent = 1

[logging]
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Podcasts.DefaultEpisodeLimit != 8 {
		t.Fatalf("default_episode_limit = %d, want 8", cfg.Podcasts.DefaultEpisodeLimit)
	}
	if cfg.Downloads.MaxConcurrent != 1 {
		t.Fatalf("max_concurrent = %d, want 1", cfg.Downloads.MaxConcurrent)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging format = %q, want json", cfg.Logging.Format)
	}
	// Untouched sections keep their defaults.
	if cfg.Audio.Format != "mp3" {
		t.Fatalf("audio format = %q, want mp3", cfg.Audio.Format)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stride.toml")
	content := `
[downloads]
max_concurrent = 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected validation error for max_concurrent = 0")
	}
}

func TestNormalizeExpandsHomePaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.DataDir = "~/stride-data"
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if strings.HasPrefix(cfg.Paths.DataDir, "~") {
		t.Fatalf("expected expanded path, got %q", cfg.Paths.DataDir)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("expected absolute path, got %q", cfg.Paths.DataDir)
	}
}

func TestValidateUnsupportedAudioFormat(t *testing.T) {
	cfg := Default()
	cfg.Audio.Format = "ogg"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported audio format")
	}
}

func TestCreateSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[podcasts]") {
		t.Fatal("sample config missing podcasts section")
	}
	if _, _, _, err := Load(path); err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
}
