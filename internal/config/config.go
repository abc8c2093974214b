package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	EpisodesDir  string `toml:"episodes_dir"`
	ConvertedDir string `toml:"converted_dir"`
	LogDir       string `toml:"log_dir"`
	APIBind      string `toml:"api_bind"`
	APIToken     string `toml:"api_token"`
}

// Podcasts contains subscription refresh behavior.
type Podcasts struct {
	DefaultEpisodeLimit    int  `toml:"default_episode_limit"`
	AutoDownload           bool `toml:"auto_download"`
	RefreshIntervalMinutes int  `toml:"refresh_interval_minutes"`
	FeedTimeout            int  `toml:"feed_timeout"`
}

// Downloads contains transfer engine settings.
type Downloads struct {
	MaxConcurrent        int `toml:"max_concurrent"`
	Timeout              int `toml:"timeout"`
	SizeTolerancePercent int `toml:"size_tolerance_percent"`
}

// Audio contains conversion target settings.
type Audio struct {
	Format  string `toml:"format"`
	Bitrate string `toml:"bitrate"`
}

// Device contains watch detection and sync settings.
type Device struct {
	MountPath   string `toml:"mount_path"`
	MusicFolder string `toml:"music_folder"`
	AutoSync    bool   `toml:"auto_sync"`
}

// Storage contains local retention and cleanup settings.
type Storage struct {
	MaxStorageMB         int64 `toml:"max_storage_mb"`
	KeepSynced           bool  `toml:"keep_synced"`
	CleanupIntervalHours int   `toml:"cleanup_interval_hours"`
	MaxAgeDays           int   `toml:"max_age_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Stride.
//
// Configuration sections by subsystem:
//   - Paths: data directories and API bind address
//   - Podcasts: refresh cadence and per-feed download defaults
//   - Downloads: transfer concurrency and timeouts
//   - Audio: conversion target format
//   - Device: watch mount detection and auto sync
//   - Storage: local retention ceiling and cleanup cadence
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Podcasts  Podcasts  `toml:"podcasts"`
	Downloads Downloads `toml:"downloads"`
	Audio     Audio     `toml:"audio"`
	Device    Device    `toml:"device"`
	Storage   Storage   `toml:"storage"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/stride/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/stride/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("stride.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.EpisodesDir, c.Paths.ConvertedDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "stride.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "strided.lock")
}

// SocketPath returns the IPC control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "strided.sock")
}

// FFmpegBinary returns the ffmpeg executable name used for audio conversion.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
