package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"stride/internal/device"
	"stride/internal/download"
	"stride/internal/feed"
	"stride/internal/logging"
	"stride/internal/services"
	"stride/internal/storage"
	"stride/internal/store"
)

// Subscribe adds a feed and, when auto-download applies, queues its newest
// episodes immediately.
func (d *Daemon) Subscribe(ctx context.Context, rssURL string, episodeLimit int, autoDownload bool) (*store.Podcast, error) {
	rssURL = strings.TrimSpace(rssURL)
	if rssURL == "" {
		return nil, services.Wrap(services.ErrValidation, "daemon", "subscribe", "rss url is required", nil)
	}
	if episodeLimit <= 0 {
		episodeLimit = d.Config().Podcasts.DefaultEpisodeLimit
	}

	podcast, err := d.refresher().Subscribe(ctx, rssURL, episodeLimit, autoDownload)
	if err != nil {
		return nil, err
	}
	if podcast.AutoDownload {
		d.queueNewEpisodes(ctx, podcast)
	}
	return podcast, nil
}

// ListPodcasts returns all subscriptions ordered by title.
func (d *Daemon) ListPodcasts(ctx context.Context) ([]*store.Podcast, error) {
	return d.store.ListPodcasts(ctx)
}

// GetPodcast returns one subscription, or nil when absent.
func (d *Daemon) GetPodcast(ctx context.Context, id int64) (*store.Podcast, error) {
	return d.store.GetPodcast(ctx, id)
}

// UpdatePodcast changes a subscription's limit and auto-download flag.
func (d *Daemon) UpdatePodcast(ctx context.Context, id int64, episodeLimit *int, autoDownload *bool) (*store.Podcast, error) {
	podcast, err := d.store.GetPodcast(ctx, id)
	if err != nil {
		return nil, err
	}
	if podcast == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "update podcast",
			fmt.Sprintf("podcast %d", id), nil)
	}
	if episodeLimit != nil {
		if *episodeLimit <= 0 {
			return nil, services.Wrap(services.ErrValidation, "daemon", "update podcast",
				"episode limit must be positive", nil)
		}
		podcast.EpisodeLimit = *episodeLimit
	}
	if autoDownload != nil {
		podcast.AutoDownload = *autoDownload
	}
	if err := d.store.UpdatePodcast(ctx, podcast); err != nil {
		return nil, err
	}
	return podcast, nil
}

// DeletePodcast removes a subscription: in-flight downloads are cancelled,
// artifacts deleted, and the episode rows cascade away with the podcast.
func (d *Daemon) DeletePodcast(ctx context.Context, id int64) error {
	podcast, err := d.store.GetPodcast(ctx, id)
	if err != nil {
		return err
	}
	if podcast == nil {
		return services.Wrap(services.ErrNotFound, "daemon", "delete podcast",
			fmt.Sprintf("podcast %d", id), nil)
	}

	d.guard.Lock(id)
	defer d.guard.Unlock(id)

	episodes, err := d.store.ListEpisodes(ctx, id)
	if err != nil {
		return err
	}
	for _, episode := range episodes {
		d.cancelIfInFlight(episode.ID)
		removeEpisodeArtifacts(episode)
	}
	if err := d.store.DeletePodcast(ctx, id); err != nil {
		return err
	}
	d.logger.Info("podcast deleted",
		logging.Int64(logging.FieldPodcastID, id),
		logging.Int("episodes", len(episodes)),
	)
	return nil
}

// RefreshPodcast refetches one feed and queues new episodes when the
// subscription auto-downloads.
func (d *Daemon) RefreshPodcast(ctx context.Context, id int64) (*feed.RefreshResult, error) {
	podcast, err := d.store.GetPodcast(ctx, id)
	if err != nil {
		return nil, err
	}
	if podcast == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "refresh podcast",
			fmt.Sprintf("podcast %d", id), nil)
	}
	result, err := d.refresher().Refresh(ctx, podcast)
	if err != nil {
		return nil, err
	}
	if podcast.AutoDownload && result.NewEpisodes > 0 {
		d.queueNewEpisodes(ctx, podcast)
	}
	return result, nil
}

// RefreshAll refreshes every subscription. Per-feed failures are logged and
// the pass continues.
func (d *Daemon) RefreshAll(ctx context.Context) ([]*feed.RefreshResult, error) {
	podcasts, err := d.store.ListPodcasts(ctx)
	if err != nil {
		return nil, err
	}
	refresher := d.refresher()
	results := make([]*feed.RefreshResult, 0, len(podcasts))
	for _, podcast := range podcasts {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		result, err := refresher.Refresh(ctx, podcast)
		if err != nil {
			logging.WarnWithContext(d.logger, "feed refresh failed", "refresh_failed",
				logging.Int64(logging.FieldPodcastID, podcast.ID),
				logging.Error(err),
			)
			continue
		}
		results = append(results, result)
		if podcast.AutoDownload && result.NewEpisodes > 0 {
			d.queueNewEpisodes(ctx, podcast)
		}
	}
	return results, nil
}

// ListEpisodes returns a podcast's episodes, newest first.
func (d *Daemon) ListEpisodes(ctx context.Context, podcastID int64) ([]*store.Episode, error) {
	return d.store.ListEpisodes(ctx, podcastID)
}

// GetEpisode returns one episode, or nil when absent.
func (d *Daemon) GetEpisode(ctx context.Context, id int64) (*store.Episode, error) {
	return d.store.GetEpisode(ctx, id)
}

// DownloadEpisode queues one episode for transfer.
func (d *Daemon) DownloadEpisode(ctx context.Context, id int64) error {
	engine, err := d.requireEngine()
	if err != nil {
		return err
	}
	return engine.Enqueue(ctx, id)
}

// DownloadNewEpisodes queues a podcast's newest undownloaded episodes up to
// its limit. It reports how many were queued.
func (d *Daemon) DownloadNewEpisodes(ctx context.Context, podcastID int64) (int, error) {
	engine, err := d.requireEngine()
	if err != nil {
		return 0, err
	}
	podcast, err := d.store.GetPodcast(ctx, podcastID)
	if err != nil {
		return 0, err
	}
	if podcast == nil {
		return 0, services.Wrap(services.ErrNotFound, "daemon", "download new",
			fmt.Sprintf("podcast %d", podcastID), nil)
	}
	return engine.EnqueueForPodcast(ctx, podcast)
}

// CancelDownload aborts an in-flight transfer and resets the episode.
func (d *Daemon) CancelDownload(ctx context.Context, id int64) error {
	engine, err := d.requireEngine()
	if err != nil {
		return err
	}
	return engine.Cancel(id)
}

// DeleteEpisode removes one episode and its artifacts.
func (d *Daemon) DeleteEpisode(ctx context.Context, id int64) error {
	episode, err := d.store.GetEpisode(ctx, id)
	if err != nil {
		return err
	}
	if episode == nil {
		return services.Wrap(services.ErrNotFound, "daemon", "delete episode",
			fmt.Sprintf("episode %d", id), nil)
	}
	d.cancelIfInFlight(id)
	removeEpisodeArtifacts(episode)
	return d.store.DeleteEpisode(ctx, id)
}

// ConvertEpisode re-runs conversion for a downloaded episode.
func (d *Daemon) ConvertEpisode(ctx context.Context, id int64) error {
	return d.converter().Convert(ctx, id)
}

// SyncNow runs a device reconciliation immediately.
func (d *Daemon) SyncNow(ctx context.Context, podcastID *int64, syncType store.SyncType) (*store.SyncRun, error) {
	return d.reconciler().Run(ctx, podcastID, syncType)
}

// SyncHistory returns the most recent sync runs, newest first.
func (d *Daemon) SyncHistory(ctx context.Context, limit int) ([]*store.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return d.store.ListSyncRuns(ctx, limit)
}

// DeviceInfo probes for the sync target. It works whether or not the daemon
// is started; the CLI status path uses it too.
func (d *Daemon) DeviceInfo(ctx context.Context) (device.Info, error) {
	d.mu.Lock()
	prober := d.prober
	d.mu.Unlock()
	if prober == nil {
		prober = device.NewProber(d.Config(), d.logger)
	}
	return prober.Detect(ctx)
}

// StorageStats reports disk totals and library directory sizes.
func (d *Daemon) StorageStats(ctx context.Context) (storage.DiskStats, error) {
	return d.janitor().Stats(ctx)
}

// StorageBreakdown reports per-podcast usage, largest first.
func (d *Daemon) StorageBreakdown(ctx context.Context) ([]storage.PodcastUsage, error) {
	return d.janitor().Breakdown(ctx)
}

// Cleanup runs one janitor pass by name, or every pass for "all".
func (d *Daemon) Cleanup(ctx context.Context, pass string) (storage.CleanupResult, error) {
	janitor := d.janitor()
	switch strings.ToLower(strings.TrimSpace(pass)) {
	case "failed":
		return janitor.CleanupFailed(ctx)
	case "orphans":
		return janitor.CleanupOrphans(ctx)
	case "age":
		return janitor.CleanupByAge(ctx)
	case "cap":
		return janitor.CleanupByCap(ctx)
	case "", "all":
		return janitor.Sweep(ctx)
	default:
		return storage.CleanupResult{}, services.Wrap(services.ErrValidation, "daemon", "cleanup",
			fmt.Sprintf("unknown cleanup pass %q", pass), nil)
	}
}

func (d *Daemon) requireEngine() (*download.Engine, error) {
	d.mu.Lock()
	engine := d.engine
	d.mu.Unlock()
	if engine == nil {
		return nil, errors.New("daemon not running")
	}
	return engine, nil
}

func (d *Daemon) cancelIfInFlight(episodeID int64) {
	d.mu.Lock()
	engine := d.engine
	d.mu.Unlock()
	if engine == nil {
		return
	}
	if err := engine.Cancel(episodeID); err != nil && !errors.Is(err, services.ErrNotInFlight) {
		d.logger.Warn("cancel before delete failed",
			logging.Int64(logging.FieldEpisodeID, episodeID),
			logging.Error(err),
		)
	}
}

func (d *Daemon) queueNewEpisodes(ctx context.Context, podcast *store.Podcast) {
	engine, err := d.requireEngine()
	if err != nil {
		return
	}
	queued, err := engine.EnqueueForPodcast(ctx, podcast)
	if err != nil {
		logging.WarnWithContext(d.logger, "auto-download queueing failed", "auto_download_failed",
			logging.Int64(logging.FieldPodcastID, podcast.ID),
			logging.Error(err),
		)
		return
	}
	if queued > 0 {
		d.logger.Info("queued new episodes",
			logging.Int64(logging.FieldPodcastID, podcast.ID),
			logging.Int("queued", queued),
		)
	}
}

func removeEpisodeArtifacts(episode *store.Episode) {
	for _, path := range []string{episode.ConvertedPath, episode.LocalPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			continue
		}
	}
}
