// Package sync reconciles the device's music folder with the library: the
// newest downloaded episodes of every subscription are copied on, stale files
// are removed, and each run is recorded in sync history.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stride/internal/config"
	"stride/internal/device"
	"stride/internal/events"
	"stride/internal/fileutil"
	"stride/internal/logging"
	"stride/internal/services"
	"stride/internal/store"
)

// Reconciler plans and executes device sync runs.
type Reconciler struct {
	cfg    *config.Config
	store  *store.Store
	prober device.Prober
	hub    *events.Hub
	guard  *services.PodcastGuard
	logger *slog.Logger
}

// NewReconciler constructs a reconciler. The guard is shared with the
// retention policy so sync and eviction never rewrite a podcast at once.
func NewReconciler(cfg *config.Config, st *store.Store, prober device.Prober, hub *events.Hub, guard *services.PodcastGuard, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		cfg:    cfg,
		store:  st,
		prober: prober,
		hub:    hub,
		guard:  guard,
		logger: logging.NewComponentLogger(logger, "sync"),
	}
}

// planItem pairs an episode with its resolved device filename.
type planItem struct {
	episode    *store.Episode
	sourcePath string
	deviceName string
}

// Run reconciles every subscription (or just one when podcastID is non-nil)
// against the device. Per-item failures downgrade the outcome to partial and
// the run continues; a device-level failure aborts the remainder.
func (r *Reconciler) Run(ctx context.Context, podcastID *int64, syncType store.SyncType) (*store.SyncRun, error) {
	info, err := r.prober.Detect(ctx)
	if err != nil {
		return nil, err
	}
	if !info.Mounted || !info.Writable {
		return nil, services.Wrap(services.ErrDeviceUnavailable, "sync", "preflight",
			"no writable device mounted", nil)
	}

	var podcasts []*store.Podcast
	if podcastID != nil {
		podcast, err := r.store.GetPodcast(ctx, *podcastID)
		if err != nil {
			return nil, err
		}
		if podcast == nil {
			return nil, services.Wrap(services.ErrNotFound, "sync", "load podcast",
				fmt.Sprintf("podcast %d", *podcastID), nil)
		}
		podcasts = []*store.Podcast{podcast}
	} else {
		if podcasts, err = r.store.ListPodcasts(ctx); err != nil {
			return nil, err
		}
	}

	run, err := r.store.BeginSyncRun(ctx, podcastID, syncType)
	if err != nil {
		return nil, err
	}
	r.publishState(run, "sync started")

	var firstErr error
	aborted := false
	itemFailures := 0
	for _, podcast := range podcasts {
		if ctx.Err() != nil {
			aborted = true
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			break
		}
		failures, err := r.reconcilePodcast(ctx, podcast, info, run)
		itemFailures += failures
		if err != nil {
			// Device-level failure: stop touching the device.
			aborted = true
			if firstErr == nil {
				firstErr = err
			}
			break
		}
	}

	switch {
	case aborted:
		run.Outcome = store.SyncOutcomeFailed
	case itemFailures > 0:
		run.Outcome = store.SyncOutcomePartial
	default:
		run.Outcome = store.SyncOutcomeSuccess
	}
	if firstErr != nil {
		run.ErrorMessage = firstErr.Error()
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err := r.store.CompleteSyncRun(ctx, run); err != nil {
		return run, err
	}

	r.publishState(run, "sync "+string(run.Outcome))
	r.logger.Info("sync run finished",
		logging.String("outcome", string(run.Outcome)),
		logging.Int("added", run.EpisodesAdded),
		logging.Int("removed", run.EpisodesRemoved),
		logging.Int("skipped", run.EpisodesSkipped),
		logging.String("bytes_copied", fmt.Sprintf("%d", run.BytesCopied)),
	)
	if aborted {
		return run, firstErr
	}
	return run, nil
}

// reconcilePodcast executes the copy/remove plan for one subscription. The
// returned int counts per-item failures; the error is device-level only.
func (r *Reconciler) reconcilePodcast(ctx context.Context, podcast *store.Podcast, info device.Info, run *store.SyncRun) (int, error) {
	r.guard.Lock(podcast.ID)
	defer r.guard.Unlock(podcast.ID)

	desired, err := r.desiredSet(ctx, podcast)
	if err != nil {
		return 0, err
	}

	podcastDir := filepath.Join(info.MusicFolder, fileutil.SanitizeFilename(podcast.Title))
	onDevice, err := listDeviceFiles(podcastDir)
	if err != nil {
		return 0, services.Wrap(services.ErrDeviceUnavailable, "sync", "list device files", podcastDir, err)
	}

	failures := 0
	kept := make(map[string]struct{}, len(desired))
	for _, item := range desired {
		if ctx.Err() != nil {
			return failures, ctx.Err()
		}
		kept[item.deviceName] = struct{}{}
		copied, bytes, err := r.syncItem(ctx, podcastDir, item, onDevice)
		if err != nil {
			if isDeviceError(err) {
				return failures, err
			}
			failures++
			if run.ErrorMessage == "" {
				run.ErrorMessage = err.Error()
			}
			logging.WarnWithContext(r.logger, "episode sync failed", "sync_item_failed",
				logging.Int64(logging.FieldEpisodeID, item.episode.ID),
				logging.Error(err),
			)
			continue
		}
		if copied {
			run.EpisodesAdded++
			run.BytesCopied += bytes
		} else {
			run.EpisodesSkipped++
		}
	}

	// Removals run after every copy so a failure never leaves the device
	// emptier than it started.
	for name := range onDevice {
		if _, keep := kept[name]; keep {
			continue
		}
		if err := os.Remove(filepath.Join(podcastDir, name)); err != nil && !os.IsNotExist(err) {
			return failures, services.Wrap(services.ErrDeviceUnavailable, "sync", "remove device file", name, err)
		}
		run.EpisodesRemoved++
		if episode := matchEpisodeByToken(ctx, r.store, podcast.ID, name); episode != nil {
			if err := r.store.MarkUnsynced(ctx, episode.ID); err != nil {
				r.logger.Warn("clear synced flag",
					logging.Int64(logging.FieldEpisodeID, episode.ID),
					logging.Error(err),
				)
			}
		}
	}
	return failures, nil
}

// desiredSet selects the episode_limit newest episodes holding a usable
// artifact, newest first.
func (r *Reconciler) desiredSet(ctx context.Context, podcast *store.Podcast) ([]planItem, error) {
	limit := podcast.EpisodeLimit
	if limit <= 0 {
		limit = r.cfg.Podcasts.DefaultEpisodeLimit
	}
	episodes, err := r.store.ListEpisodes(ctx, podcast.ID)
	if err != nil {
		return nil, err
	}

	items := make([]planItem, 0, limit)
	for _, episode := range episodes {
		if len(items) >= limit {
			break
		}
		if !episode.HasArtifact() {
			continue
		}
		source := episode.ArtifactPath()
		if _, err := os.Stat(source); err != nil {
			continue
		}
		items = append(items, planItem{
			episode:    episode,
			sourcePath: source,
			deviceName: fileutil.EpisodeFileName(episode.Title, episode.GUID, filepath.Ext(source)),
		})
	}
	return items, nil
}

// syncItem copies one episode onto the device unless an equally sized copy is
// already there. It marks the row synced either way.
func (r *Reconciler) syncItem(ctx context.Context, podcastDir string, item planItem, onDevice map[string]int64) (bool, int64, error) {
	if existing, ok := onDevice[item.deviceName]; ok {
		if srcInfo, err := os.Stat(item.sourcePath); err == nil && srcInfo.Size() == existing {
			// Smart skip: same name, same size, zero bytes moved.
			if err := r.markSynced(ctx, item.episode); err != nil {
				return false, 0, err
			}
			return false, 0, nil
		}
	}

	// An unreadable source is this episode's problem, not the device's.
	src, err := os.Open(item.sourcePath)
	if err != nil {
		return false, 0, fmt.Errorf("open source artifact: %w", err)
	}
	src.Close()

	if err := os.MkdirAll(podcastDir, 0o755); err != nil {
		return false, 0, services.Wrap(services.ErrDeviceUnavailable, "sync", "create podcast dir", podcastDir, err)
	}
	dest := filepath.Join(podcastDir, item.deviceName)
	bytes, err := fileutil.CopyFileVerified(item.sourcePath, dest)
	if err != nil {
		return false, 0, services.Wrap(services.ErrDeviceUnavailable, "sync", "copy episode", item.deviceName, err)
	}
	if err := r.markSynced(ctx, item.episode); err != nil {
		return true, bytes, err
	}

	r.hub.Publish(events.Event{
		Kind:      events.KindSyncProgress,
		PodcastID: item.episode.PodcastID,
		EpisodeID: item.episode.ID,
		Message:   "copied " + item.deviceName,
	})
	return true, bytes, nil
}

func (r *Reconciler) markSynced(ctx context.Context, episode *store.Episode) error {
	if episode.SyncedToDevice {
		return nil
	}
	return r.store.MarkSynced(ctx, episode.ID, time.Now().UTC())
}

func (r *Reconciler) publishState(run *store.SyncRun, message string) {
	event := events.Event{
		Kind:    events.KindSyncState,
		Message: message,
	}
	if run.PodcastID != nil {
		event.PodcastID = *run.PodcastID
	}
	r.hub.Publish(event)
}

// listDeviceFiles maps filename to size for the podcast's device folder. A
// missing folder is an empty device set, not an error.
func listDeviceFiles(dir string) (map[string]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int64{}, nil
		}
		return nil, err
	}
	files := make(map[string]int64, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files[entry.Name()] = info.Size()
	}
	return files, nil
}

// matchEpisodeByToken finds the episode whose GUID token is embedded in a
// device filename. Titles are not trusted; the token is the identity.
func matchEpisodeByToken(ctx context.Context, st *store.Store, podcastID int64, filename string) *store.Episode {
	episodes, err := st.ListEpisodes(ctx, podcastID)
	if err != nil {
		return nil
	}
	for _, episode := range episodes {
		if fileutil.HasGUIDToken(filename, episode.GUID) {
			return episode
		}
	}
	return nil
}

func isDeviceError(err error) bool {
	return errors.Is(err, services.ErrDeviceUnavailable)
}
