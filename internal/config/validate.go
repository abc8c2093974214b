package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePodcasts(); err != nil {
		return err
	}
	if err := c.validateDownloads(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.EpisodesDir) == "" {
		return errors.New("paths.episodes_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ConvertedDir) == "" {
		return errors.New("paths.converted_dir must be set")
	}
	return nil
}

func (c *Config) validatePodcasts() error {
	if c.Podcasts.DefaultEpisodeLimit < 1 {
		return errors.New("podcasts.default_episode_limit must be at least 1")
	}
	if c.Podcasts.RefreshIntervalMinutes < 1 {
		return errors.New("podcasts.refresh_interval_minutes must be at least 1")
	}
	return nil
}

func (c *Config) validateDownloads() error {
	if c.Downloads.MaxConcurrent < 1 {
		return errors.New("downloads.max_concurrent must be at least 1")
	}
	if c.Downloads.SizeTolerancePercent < 0 || c.Downloads.SizeTolerancePercent > 100 {
		return errors.New("downloads.size_tolerance_percent must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateAudio() error {
	switch c.Audio.Format {
	case "mp3":
	default:
		return fmt.Errorf("audio.format: unsupported value %q (only mp3 is supported)", c.Audio.Format)
	}
	if c.Audio.Bitrate == "" {
		return errors.New("audio.bitrate must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.MaxStorageMB < 0 {
		return errors.New("storage.max_storage_mb must not be negative")
	}
	if c.Storage.MaxAgeDays < 0 {
		return errors.New("storage.max_age_days must not be negative")
	}
	if c.Storage.CleanupIntervalHours < 1 {
		return errors.New("storage.cleanup_interval_hours must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
