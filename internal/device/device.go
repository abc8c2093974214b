// Package device locates the removable player the daemon syncs to. Detection
// is a pure query: it scans the platform's removable-media mount roots for a
// volume carrying the configured music folder, verifies writability with a
// probe file, and reports storage totals.
package device

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"stride/internal/config"
	"stride/internal/logging"
)

// Info describes the detected device, or its absence.
type Info struct {
	Mounted     bool   `json:"mounted"`
	MountPoint  string `json:"mount_point,omitempty"`
	MusicFolder string `json:"music_folder,omitempty"`
	Writable    bool   `json:"writable"`
	TotalBytes  uint64 `json:"total_bytes,omitempty"`
	FreeBytes   uint64 `json:"free_bytes,omitempty"`
}

// Prober detects the sync target. Implementations must be safe to poll.
type Prober interface {
	Detect(ctx context.Context) (Info, error)
}

type statfsFunc func(path string) (total, free uint64, err error)

// FolderProber scans mount roots for a volume containing the music folder.
type FolderProber struct {
	cfg    *config.Config
	logger *slog.Logger
	roots  []string
	statfs statfsFunc
}

// NewProber builds the platform prober. A configured mount_path bypasses the
// scan entirely.
func NewProber(cfg *config.Config, logger *slog.Logger) *FolderProber {
	return &FolderProber{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "device"),
		roots:  defaultRoots(),
		statfs: realStatfs,
	}
}

// Detect returns the current device state. An unmounted device is not an
// error; Info.Mounted carries the answer.
func (p *FolderProber) Detect(ctx context.Context) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	if override := strings.TrimSpace(p.cfg.Device.MountPath); override != "" {
		return p.inspect(override), nil
	}

	for _, root := range p.roots {
		// Windows drive letters are mounts themselves; unix roots hold
		// one directory per mounted volume.
		if info := p.inspect(root); info.Mounted {
			return info, nil
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			info := p.inspect(filepath.Join(root, entry.Name()))
			if info.Mounted {
				return info, nil
			}
		}
	}
	return Info{}, nil
}

// inspect qualifies a single mount point: the music folder must exist as a
// directory and accept a probe file.
func (p *FolderProber) inspect(mount string) Info {
	music := filepath.Join(mount, p.cfg.Device.MusicFolder)
	stat, err := os.Stat(music)
	if err != nil || !stat.IsDir() {
		return Info{}
	}

	info := Info{
		Mounted:     true,
		MountPoint:  mount,
		MusicFolder: music,
		Writable:    probeWritable(music),
	}
	if total, free, err := p.statfs(mount); err == nil {
		info.TotalBytes = total
		info.FreeBytes = free
	} else {
		p.logger.Debug("statfs failed for mount",
			logging.String("mount", mount),
			logging.Error(err),
		)
	}
	return info
}

// Statfs reports filesystem totals for the path using the platform
// implementation. Shared with the storage manager so disk math agrees.
func Statfs(path string) (total, free uint64, err error) {
	return realStatfs(path)
}

func probeWritable(dir string) bool {
	probe := filepath.Join(dir, ".stride-probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	_ = os.Remove(probe)
	return true
}
