package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stride/internal/logging"
	"stride/internal/services"
	"stride/internal/store"
)

// Refresher folds fresh feed contents into the store.
type Refresher struct {
	client *Client
	store  *store.Store
	logger *slog.Logger
}

// RefreshResult summarizes one feed refresh.
type RefreshResult struct {
	PodcastID   int64
	NewEpisodes int
	TotalItems  int
}

// NewRefresher constructs a refresher around a feed client and store.
func NewRefresher(client *Client, st *store.Store, logger *slog.Logger) *Refresher {
	return &Refresher{
		client: client,
		store:  st,
		logger: logging.NewComponentLogger(logger, "feed-refresher"),
	}
}

// Subscribe fetches a feed for the first time and creates the subscription
// with its current items. Episode rows start pending.
func (r *Refresher) Subscribe(ctx context.Context, rssURL string, episodeLimit int, autoDownload bool) (*store.Podcast, error) {
	existing, err := r.store.FindPodcastByURL(ctx, rssURL)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, services.Wrap(services.ErrConflict, "feed", "subscribe",
			fmt.Sprintf("podcast already subscribed: %s", rssURL), nil)
	}

	result, err := r.client.Fetch(ctx, rssURL)
	if err != nil {
		return nil, err
	}

	title := result.Metadata.Title
	if title == "" {
		title = rssURL
	}

	podcast, err := r.store.AddPodcast(ctx, &store.Podcast{
		Title:        title,
		RSSURL:       rssURL,
		Description:  result.Metadata.Description,
		ImageURL:     result.Metadata.ImageURL,
		EpisodeLimit: episodeLimit,
		AutoDownload: autoDownload,
	})
	if err != nil {
		return nil, err
	}

	if _, err := r.fold(ctx, podcast, result); err != nil {
		return nil, err
	}
	return podcast, nil
}

// Refresh fetches a subscribed feed and inserts episodes with unseen GUIDs.
// Podcast metadata is updated when the feed changes it.
func (r *Refresher) Refresh(ctx context.Context, podcast *store.Podcast) (*RefreshResult, error) {
	if podcast == nil {
		return nil, fmt.Errorf("podcast is nil")
	}

	result, err := r.client.Fetch(ctx, podcast.RSSURL)
	if err != nil {
		return nil, err
	}

	return r.fold(ctx, podcast, result)
}

func (r *Refresher) fold(ctx context.Context, podcast *store.Podcast, result *Result) (*RefreshResult, error) {
	refresh := &RefreshResult{PodcastID: podcast.ID, TotalItems: len(result.Items)}

	metadataChanged := false
	if result.Metadata.Title != "" && result.Metadata.Title != podcast.Title {
		podcast.Title = result.Metadata.Title
		metadataChanged = true
	}
	if result.Metadata.Description != "" && result.Metadata.Description != podcast.Description {
		podcast.Description = result.Metadata.Description
		metadataChanged = true
	}
	if result.Metadata.ImageURL != "" && result.Metadata.ImageURL != podcast.ImageURL {
		podcast.ImageURL = result.Metadata.ImageURL
		metadataChanged = true
	}
	if metadataChanged {
		if err := r.store.UpdatePodcast(ctx, podcast); err != nil {
			return nil, err
		}
	}

	for _, item := range result.Items {
		existing, err := r.store.FindEpisodeByGUID(ctx, item.GUID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}

		if _, err := r.store.AddEpisode(ctx, &store.Episode{
			PodcastID:       podcast.ID,
			GUID:            item.GUID,
			Title:           item.Title,
			Description:     item.Description,
			AudioURL:        item.AudioURL,
			PubDate:         item.PubDate,
			DurationSeconds: item.DurationSeconds,
			FileSize:        item.FileSize,
		}); err != nil {
			return nil, err
		}
		refresh.NewEpisodes++
	}

	if err := r.store.TouchPodcastChecked(ctx, podcast.ID, time.Now().UTC()); err != nil {
		return nil, err
	}

	r.logger.Info("feed refreshed",
		logging.Int64(logging.FieldPodcastID, podcast.ID),
		logging.Int("new_episodes", refresh.NewEpisodes),
		logging.Int("total_items", refresh.TotalItems),
	)
	return refresh, nil
}
