// Package retention bounds per-podcast disk usage by keeping only the
// newest episode_limit episodes and deleting the rest, files and rows.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"stride/internal/config"
	"stride/internal/logging"
	"stride/internal/services"
	"stride/internal/store"
)

// Canceller aborts an in-flight download before its episode is evicted.
type Canceller interface {
	Cancel(episodeID int64) error
}

// Policy enforces the per-podcast episode limit.
type Policy struct {
	cfg       *config.Config
	store     *store.Store
	logger    *slog.Logger
	guard     *services.PodcastGuard
	canceller Canceller
}

// NewPolicy constructs the eviction policy. The guard is shared with the
// sync reconciler so eviction and sync never rewrite the same podcast
// concurrently.
func NewPolicy(cfg *config.Config, st *store.Store, guard *services.PodcastGuard, logger *slog.Logger) *Policy {
	return &Policy{
		cfg:    cfg,
		store:  st,
		logger: logging.NewComponentLogger(logger, "retention"),
		guard:  guard,
	}
}

// SetCanceller wires the download engine in after construction; the engine
// depends on this package's output, not the other way around.
func (p *Policy) SetCanceller(c Canceller) {
	p.canceller = c
}

// EnforceAll applies the limit to every subscription. Per-podcast errors are
// logged and the pass continues.
func (p *Policy) EnforceAll(ctx context.Context) (int, error) {
	podcasts, err := p.store.ListPodcasts(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, podcast := range podcasts {
		n, err := p.EnforcePodcast(ctx, podcast)
		removed += n
		if err != nil {
			logging.WarnWithContext(p.logger, "eviction pass failed for podcast", "eviction_failed",
				logging.Int64(logging.FieldPodcastID, podcast.ID),
				logging.Error(err),
			)
		}
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
	}
	return removed, nil
}

// EnforcePodcast deletes every episode beyond the podcast's limit, newest
// first by publication date. Synced episodes survive when keep_synced is on;
// a downloading candidate is cancelled before removal.
func (p *Policy) EnforcePodcast(ctx context.Context, podcast *store.Podcast) (int, error) {
	p.guard.Lock(podcast.ID)
	defer p.guard.Unlock(podcast.ID)

	limit := podcast.EpisodeLimit
	if limit <= 0 {
		limit = p.cfg.Podcasts.DefaultEpisodeLimit
	}

	episodes, err := p.store.ListEpisodes(ctx, podcast.ID)
	if err != nil {
		return 0, err
	}
	if len(episodes) <= limit {
		return 0, nil
	}

	removed := 0
	var firstErr error
	for _, episode := range episodes[limit:] {
		if p.cfg.Storage.KeepSynced && episode.SyncedToDevice {
			continue
		}
		if err := p.evict(ctx, episode); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	if removed > 0 {
		p.logger.Info("evicted episodes beyond limit",
			logging.Int64(logging.FieldPodcastID, podcast.ID),
			logging.Int("removed", removed),
			logging.Int("limit", limit),
		)
	}
	return removed, firstErr
}

func (p *Policy) evict(ctx context.Context, episode *store.Episode) error {
	if episode.Status == store.StatusDownloading && p.canceller != nil {
		if err := p.canceller.Cancel(episode.ID); err != nil && !errors.Is(err, services.ErrNotInFlight) {
			return err
		}
	}

	if err := removeArtifact(episode.ConvertedPath); err != nil {
		return err
	}
	if episode.LocalPath != "" && episode.LocalPath != episode.ConvertedPath {
		if err := removeArtifact(episode.LocalPath); err != nil {
			return err
		}
	}

	if err := p.store.DeleteEpisode(ctx, episode.ID); err != nil {
		return err
	}
	p.logger.Debug("episode evicted",
		logging.Int64(logging.FieldEpisodeID, episode.ID),
		logging.String(logging.FieldGUID, episode.GUID),
	)
	return nil
}

func removeArtifact(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
