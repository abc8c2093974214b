// Package storage reports library disk usage and reclaims space: failed
// downloads, orphaned files, age-expired episodes, and overcap usage.
package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"stride/internal/config"
	"stride/internal/device"
	"stride/internal/fileutil"
	"stride/internal/logging"
	"stride/internal/store"
)

// DiskStats summarizes library disk usage.
type DiskStats struct {
	TotalBytes     uint64 `json:"total_bytes"`
	FreeBytes      uint64 `json:"free_bytes"`
	EpisodesBytes  int64  `json:"episodes_bytes"`
	ConvertedBytes int64  `json:"converted_bytes"`
	DatabaseBytes  int64  `json:"database_bytes"`
}

// LibraryBytes is the space the library itself occupies.
func (d DiskStats) LibraryBytes() int64 {
	return d.EpisodesBytes + d.ConvertedBytes
}

// PodcastUsage is one podcast's share of the library.
type PodcastUsage struct {
	PodcastID    int64  `json:"podcast_id"`
	Title        string `json:"title"`
	Bytes        int64  `json:"bytes"`
	EpisodeCount int    `json:"episode_count"`
	SyncedCount  int    `json:"synced_count"`
}

// CleanupResult tallies one janitor pass.
type CleanupResult struct {
	EpisodesRemoved int   `json:"episodes_removed"`
	FilesRemoved    int   `json:"files_removed"`
	BytesFreed      int64 `json:"bytes_freed"`
}

func (r *CleanupResult) add(other CleanupResult) {
	r.EpisodesRemoved += other.EpisodesRemoved
	r.FilesRemoved += other.FilesRemoved
	r.BytesFreed += other.BytesFreed
}

type statfsFunc func(path string) (total, free uint64, err error)

// Manager owns storage accounting and cleanup.
type Manager struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
	statfs statfsFunc
}

// NewManager constructs the storage manager.
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		store:  st,
		logger: logging.NewComponentLogger(logger, "storage"),
		statfs: device.Statfs,
	}
}

// Stats reports disk totals and library directory sizes.
func (m *Manager) Stats(ctx context.Context) (DiskStats, error) {
	if err := ctx.Err(); err != nil {
		return DiskStats{}, err
	}
	stats := DiskStats{}
	if total, free, err := m.statfs(m.cfg.Paths.DataDir); err == nil {
		stats.TotalBytes = total
		stats.FreeBytes = free
	}
	stats.EpisodesBytes, _ = fileutil.DirSize(m.cfg.Paths.EpisodesDir)
	stats.ConvertedBytes, _ = fileutil.DirSize(m.cfg.Paths.ConvertedDir)
	stats.DatabaseBytes = fileutil.FileSize(m.cfg.DatabasePath())
	return stats, nil
}

// Breakdown reports per-podcast usage, largest first.
func (m *Manager) Breakdown(ctx context.Context) ([]PodcastUsage, error) {
	podcasts, err := m.store.ListPodcasts(ctx)
	if err != nil {
		return nil, err
	}
	usage := make([]PodcastUsage, 0, len(podcasts))
	for _, podcast := range podcasts {
		episodes, err := m.store.ListEpisodes(ctx, podcast.ID)
		if err != nil {
			return nil, err
		}
		entry := PodcastUsage{PodcastID: podcast.ID, Title: podcast.Title}
		for _, episode := range episodes {
			entry.EpisodeCount++
			if episode.SyncedToDevice {
				entry.SyncedCount++
			}
			entry.Bytes += artifactBytes(episode)
		}
		usage = append(usage, entry)
	}
	sort.Slice(usage, func(i, j int) bool {
		if usage[i].Bytes != usage[j].Bytes {
			return usage[i].Bytes > usage[j].Bytes
		}
		return usage[i].Title < usage[j].Title
	})
	return usage, nil
}

// CleanupFailed deletes failed episode rows and any partial artifacts.
func (m *Manager) CleanupFailed(ctx context.Context) (CleanupResult, error) {
	episodes, err := m.store.EpisodesByStatus(ctx, store.StatusFailed)
	if err != nil {
		return CleanupResult{}, err
	}
	result := CleanupResult{}
	for _, episode := range episodes {
		if err := m.deleteEpisode(ctx, episode, &result); err != nil {
			return result, err
		}
	}
	m.logCleanup("failed", result)
	return result, nil
}

// CleanupOrphans removes files under the episodes and converted directories
// that no episode row references. It never touches paths outside those two
// roots.
func (m *Manager) CleanupOrphans(ctx context.Context) (CleanupResult, error) {
	episodes, err := m.store.EpisodesByStatus(ctx, store.AllStatuses()...)
	if err != nil {
		return CleanupResult{}, err
	}
	known := make(map[string]struct{}, len(episodes)*2)
	for _, episode := range episodes {
		if episode.LocalPath != "" {
			known[filepath.Clean(episode.LocalPath)] = struct{}{}
		}
		if episode.ConvertedPath != "" {
			known[filepath.Clean(episode.ConvertedPath)] = struct{}{}
		}
	}

	result := CleanupResult{}
	for _, root := range []string{m.cfg.Paths.EpisodesDir, m.cfg.Paths.ConvertedDir} {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if _, ok := known[filepath.Clean(path)]; ok {
				return nil
			}
			info, statErr := d.Info()
			if removeErr := os.Remove(path); removeErr == nil {
				result.FilesRemoved++
				if statErr == nil {
					result.BytesFreed += info.Size()
				}
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return result, err
		}
	}
	m.logCleanup("orphans", result)
	return result, nil
}

// CleanupByAge deletes episodes published before the max_age_days horizon.
// Synced episodes survive while keep_synced is on.
func (m *Manager) CleanupByAge(ctx context.Context) (CleanupResult, error) {
	result := CleanupResult{}
	if m.cfg.Storage.MaxAgeDays <= 0 {
		return result, nil
	}
	cutoff := time.Now().AddDate(0, 0, -m.cfg.Storage.MaxAgeDays)

	episodes, err := m.store.EpisodesByStatus(ctx, store.StatusDownloaded, store.StatusFailed)
	if err != nil {
		return result, err
	}
	for _, episode := range episodes {
		if episode.PubDate == nil || !episode.PubDate.Before(cutoff) {
			continue
		}
		if m.cfg.Storage.KeepSynced && episode.SyncedToDevice {
			continue
		}
		if err := m.deleteEpisode(ctx, episode, &result); err != nil {
			return result, err
		}
	}
	m.logCleanup("age", result)
	return result, nil
}

// CleanupByCap deletes the oldest removable episodes until library usage
// fits under max_storage_mb.
func (m *Manager) CleanupByCap(ctx context.Context) (CleanupResult, error) {
	result := CleanupResult{}
	if m.cfg.Storage.MaxStorageMB <= 0 {
		return result, nil
	}
	capBytes := m.cfg.Storage.MaxStorageMB * 1024 * 1024

	used, err := m.libraryBytes()
	if err != nil {
		return result, err
	}
	if used <= capBytes {
		return result, nil
	}

	episodes, err := m.store.EpisodesByStatus(ctx, store.StatusDownloaded, store.StatusFailed)
	if err != nil {
		return result, err
	}
	// Oldest first; undated rows go last.
	sort.SliceStable(episodes, func(i, j int) bool {
		a, b := episodes[i].PubDate, episodes[j].PubDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	for _, episode := range episodes {
		if used <= capBytes {
			break
		}
		if m.cfg.Storage.KeepSynced && episode.SyncedToDevice {
			continue
		}
		freed := artifactBytes(episode)
		if err := m.deleteEpisode(ctx, episode, &result); err != nil {
			return result, err
		}
		used -= freed
	}
	m.logCleanup("cap", result)
	return result, nil
}

// Sweep runs every janitor pass in order. Used by the scheduler.
func (m *Manager) Sweep(ctx context.Context) (CleanupResult, error) {
	total := CleanupResult{}
	passes := []func(context.Context) (CleanupResult, error){
		m.CleanupFailed,
		m.CleanupOrphans,
		m.CleanupByAge,
		m.CleanupByCap,
	}
	for _, pass := range passes {
		result, err := pass(ctx)
		total.add(result)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (m *Manager) deleteEpisode(ctx context.Context, episode *store.Episode, result *CleanupResult) error {
	for _, path := range artifactPaths(episode) {
		info, statErr := os.Stat(path)
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		result.FilesRemoved++
		if statErr == nil {
			result.BytesFreed += info.Size()
		}
	}
	if err := m.store.DeleteEpisode(ctx, episode.ID); err != nil {
		return err
	}
	result.EpisodesRemoved++
	return nil
}

func (m *Manager) libraryBytes() (int64, error) {
	episodes, err := fileutil.DirSize(m.cfg.Paths.EpisodesDir)
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	converted, err := fileutil.DirSize(m.cfg.Paths.ConvertedDir)
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	return episodes + converted, nil
}

func (m *Manager) logCleanup(pass string, result CleanupResult) {
	if result.EpisodesRemoved == 0 && result.FilesRemoved == 0 {
		return
	}
	m.logger.Info("cleanup pass reclaimed space",
		logging.String("pass", pass),
		logging.Int("episodes", result.EpisodesRemoved),
		logging.Int("files", result.FilesRemoved),
		logging.Int64("bytes", result.BytesFreed),
	)
}

func artifactPaths(episode *store.Episode) []string {
	paths := []string{}
	if episode.ConvertedPath != "" {
		paths = append(paths, episode.ConvertedPath)
	}
	if episode.LocalPath != "" && episode.LocalPath != episode.ConvertedPath {
		paths = append(paths, episode.LocalPath)
	}
	return paths
}

func artifactBytes(episode *store.Episode) int64 {
	var total int64
	for _, path := range artifactPaths(episode) {
		total += fileutil.FileSize(path)
	}
	return total
}
