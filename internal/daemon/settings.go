package daemon

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"stride/internal/config"
	"stride/internal/logging"
	"stride/internal/services"
)

// Runtime-adjustable settings. Values persist in the settings table and
// overlay the config file on every daemon start. Engine concurrency and
// scheduler cadence pin a snapshot at Start and pick up changes on restart;
// everything else applies to the next operation.
const (
	settingEpisodeLimit    = "podcasts.default_episode_limit"
	settingAutoDownload    = "podcasts.auto_download"
	settingRefreshInterval = "podcasts.refresh_interval_minutes"
	settingMaxConcurrent   = "downloads.max_concurrent"
	settingSizeTolerance   = "downloads.size_tolerance_percent"
	settingAudioBitrate    = "audio.bitrate"
	settingDeviceMountPath = "device.mount_path"
	settingDeviceAutoSync  = "device.auto_sync"
	settingKeepSynced      = "storage.keep_synced"
	settingMaxStorageMB    = "storage.max_storage_mb"
	settingMaxAgeDays      = "storage.max_age_days"
	settingCleanupInterval = "storage.cleanup_interval_hours"
)

type settingApplier func(cfg *config.Config, value string) error

var settingAppliers = map[string]settingApplier{
	settingEpisodeLimit: func(cfg *config.Config, value string) error {
		n, err := parsePositiveInt(value)
		if err != nil {
			return err
		}
		cfg.Podcasts.DefaultEpisodeLimit = n
		return nil
	},
	settingAutoDownload: func(cfg *config.Config, value string) error {
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		cfg.Podcasts.AutoDownload = b
		return nil
	},
	settingRefreshInterval: func(cfg *config.Config, value string) error {
		n, err := parsePositiveInt(value)
		if err != nil {
			return err
		}
		cfg.Podcasts.RefreshIntervalMinutes = n
		return nil
	},
	settingMaxConcurrent: func(cfg *config.Config, value string) error {
		n, err := parsePositiveInt(value)
		if err != nil {
			return err
		}
		cfg.Downloads.MaxConcurrent = n
		return nil
	},
	settingSizeTolerance: func(cfg *config.Config, value string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 || n > 100 {
			return fmt.Errorf("expected percent 0-100, got %q", value)
		}
		cfg.Downloads.SizeTolerancePercent = n
		return nil
	},
	settingAudioBitrate: func(cfg *config.Config, value string) error {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return fmt.Errorf("bitrate cannot be empty")
		}
		cfg.Audio.Bitrate = trimmed
		return nil
	},
	settingDeviceMountPath: func(cfg *config.Config, value string) error {
		expanded, err := config.ExpandPath(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		cfg.Device.MountPath = expanded
		return nil
	},
	settingDeviceAutoSync: func(cfg *config.Config, value string) error {
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		cfg.Device.AutoSync = b
		return nil
	},
	settingKeepSynced: func(cfg *config.Config, value string) error {
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		cfg.Storage.KeepSynced = b
		return nil
	},
	settingMaxStorageMB: func(cfg *config.Config, value string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("expected non-negative integer, got %q", value)
		}
		cfg.Storage.MaxStorageMB = n
		return nil
	},
	settingMaxAgeDays: func(cfg *config.Config, value string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return fmt.Errorf("expected non-negative integer, got %q", value)
		}
		cfg.Storage.MaxAgeDays = n
		return nil
	},
	settingCleanupInterval: func(cfg *config.Config, value string) error {
		n, err := parsePositiveInt(value)
		if err != nil {
			return err
		}
		cfg.Storage.CleanupIntervalHours = n
		return nil
	},
}

// SettingKeys lists the adjustable setting names, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingAppliers))
	for key := range settingAppliers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Settings returns the persisted overrides.
func (d *Daemon) Settings(ctx context.Context) (map[string]string, error) {
	return d.store.AllSettings(ctx)
}

// UpdateSettings validates and persists overrides, then swaps in the new
// effective configuration.
func (d *Daemon) UpdateSettings(ctx context.Context, updates map[string]string) (*config.Config, error) {
	if len(updates) == 0 {
		return d.Config(), nil
	}

	// Validate against a scratch copy before persisting anything.
	scratch := *d.Config()
	for key, value := range updates {
		apply, ok := settingAppliers[key]
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "daemon", "update settings",
				fmt.Sprintf("unknown setting %q", key), nil)
		}
		if err := apply(&scratch, value); err != nil {
			return nil, services.Wrap(services.ErrValidation, "daemon", "update settings",
				fmt.Sprintf("setting %q", key), err)
		}
	}

	for key, value := range updates {
		if err := d.store.PutSetting(ctx, key, value); err != nil {
			return nil, err
		}
	}

	effective, err := d.overlaySettings(ctx, d.base)
	if err != nil {
		return nil, err
	}
	d.effective.Store(effective)
	d.logger.Info("settings updated",
		logging.Int("count", len(updates)),
	)
	return effective, nil
}

// ResetSettings drops every override and restores the file configuration.
func (d *Daemon) ResetSettings(ctx context.Context) (*config.Config, error) {
	if err := d.store.ClearSettings(ctx); err != nil {
		return nil, err
	}
	base := *d.base
	d.effective.Store(&base)
	d.logger.Info("settings reset to file configuration")
	return &base, nil
}

// overlaySettings copies the base config and applies persisted overrides.
// Unknown or invalid stored values are logged and skipped rather than
// blocking startup.
func (d *Daemon) overlaySettings(ctx context.Context, base *config.Config) (*config.Config, error) {
	overrides, err := d.store.AllSettings(ctx)
	if err != nil {
		return nil, err
	}
	effective := *base
	for key, value := range overrides {
		apply, ok := settingAppliers[key]
		if !ok {
			d.logger.Warn("ignoring unknown persisted setting",
				logging.String("key", key),
			)
			continue
		}
		if err := apply(&effective, value); err != nil {
			d.logger.Warn("ignoring invalid persisted setting",
				logging.String("key", key),
				logging.Error(err),
			)
		}
	}
	return &effective, nil
}

func parsePositiveInt(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("expected positive integer, got %q", value)
	}
	return n, nil
}

func parseBool(value string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("expected boolean, got %q", value)
	}
	return b, nil
}
