package api

import (
	"time"

	"stride/internal/store"
)

// FromPodcast converts a podcast record to its API representation.
func FromPodcast(podcast *store.Podcast) Podcast {
	if podcast == nil {
		return Podcast{}
	}
	dto := Podcast{
		ID:           podcast.ID,
		Title:        podcast.Title,
		RSSURL:       podcast.RSSURL,
		Description:  podcast.Description,
		ImageURL:     podcast.ImageURL,
		EpisodeLimit: podcast.EpisodeLimit,
		AutoDownload: podcast.AutoDownload,
		CreatedAt:    FormatTime(podcast.CreatedAt),
	}
	if podcast.LastChecked != nil {
		dto.LastChecked = FormatTime(*podcast.LastChecked)
	}
	return dto
}

// FromPodcasts converts a slice of podcast records into API DTOs.
func FromPodcasts(podcasts []*store.Podcast) []Podcast {
	out := make([]Podcast, 0, len(podcasts))
	for _, podcast := range podcasts {
		out = append(out, FromPodcast(podcast))
	}
	return out
}

// FromEpisode converts an episode record to its API representation.
func FromEpisode(episode *store.Episode) Episode {
	if episode == nil {
		return Episode{}
	}
	dto := Episode{
		ID:               episode.ID,
		PodcastID:        episode.PodcastID,
		GUID:             episode.GUID,
		Title:            episode.Title,
		Description:      episode.Description,
		AudioURL:         episode.AudioURL,
		DurationSeconds:  episode.DurationSeconds,
		FileSize:         episode.FileSize,
		Status:           string(episode.Status),
		DownloadProgress: episode.DownloadProgress,
		LocalPath:        episode.LocalPath,
		ConvertedPath:    episode.ConvertedPath,
		SyncedToDevice:   episode.SyncedToDevice,
		ErrorMessage:     episode.ErrorMessage,
	}
	if episode.PubDate != nil {
		dto.PubDate = FormatTime(*episode.PubDate)
	}
	if episode.SyncDate != nil {
		dto.SyncDate = FormatTime(*episode.SyncDate)
	}
	return dto
}

// FromEpisodes converts a slice of episode records into API DTOs.
func FromEpisodes(episodes []*store.Episode) []Episode {
	out := make([]Episode, 0, len(episodes))
	for _, episode := range episodes {
		out = append(out, FromEpisode(episode))
	}
	return out
}

// FromSyncRun converts a sync run record to its API representation.
func FromSyncRun(run *store.SyncRun) SyncRun {
	if run == nil {
		return SyncRun{}
	}
	dto := SyncRun{
		ID:              run.ID,
		PodcastID:       run.PodcastID,
		Type:            string(run.Type),
		EpisodesAdded:   run.EpisodesAdded,
		EpisodesRemoved: run.EpisodesRemoved,
		EpisodesSkipped: run.EpisodesSkipped,
		BytesCopied:     run.BytesCopied,
		Outcome:         string(run.Outcome),
		ErrorMessage:    run.ErrorMessage,
		StartedAt:       FormatTime(run.StartedAt),
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = FormatTime(*run.CompletedAt)
	}
	return dto
}

// FromSyncRuns converts a slice of sync run records into API DTOs.
func FromSyncRuns(runs []*store.SyncRun) []SyncRun {
	out := make([]SyncRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromSyncRun(run))
	}
	return out
}

// FormatTime converts a time to RFC3339 UTC or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
