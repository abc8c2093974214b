package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"stride/internal/config"
	"stride/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewPodcast creates a subscription for tests using the provided store.
func NewPodcast(t testing.TB, st *store.Store, title string) *store.Podcast {
	t.Helper()

	podcast, err := st.AddPodcast(context.Background(), &store.Podcast{
		Title:        title,
		RSSURL:       fmt.Sprintf("https://feeds.example.com/%s.xml", title),
		EpisodeLimit: 5,
		AutoDownload: true,
	})
	if err != nil {
		t.Fatalf("store.AddPodcast: %v", err)
	}
	return podcast
}

// NewEpisode creates an episode for tests. The guid is derived from the title
// so repeated helpers in one test stay unique per title.
func NewEpisode(t testing.TB, st *store.Store, podcastID int64, title string, pubDate time.Time) *store.Episode {
	t.Helper()

	episode, err := st.AddEpisode(context.Background(), &store.Episode{
		PodcastID: podcastID,
		GUID:      fmt.Sprintf("guid-%d-%s", podcastID, title),
		Title:     title,
		AudioURL:  fmt.Sprintf("https://cdn.example.com/%s.mp3", title),
		PubDate:   &pubDate,
	})
	if err != nil {
		t.Fatalf("store.AddEpisode: %v", err)
	}
	return episode
}
