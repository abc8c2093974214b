package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"stride/internal/events"
	"stride/internal/logging"
	"stride/internal/services"
	"stride/internal/store"
	"stride/internal/testsupport"
)

func waitForStatus(t *testing.T, st *store.Store, id int64, want store.Status) *store.Episode {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		episode, err := st.GetEpisode(context.Background(), id)
		if err != nil {
			t.Fatalf("GetEpisode: %v", err)
		}
		if episode != nil && episode.Status == want {
			return episode
		}
		time.Sleep(10 * time.Millisecond)
	}
	episode, _ := st.GetEpisode(context.Background(), id)
	t.Fatalf("episode %d never reached %s (now %+v)", id, want, episode)
	return nil
}

func newEngine(t *testing.T, onComplete CompletionFunc) (*Engine, *store.Store, func()) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	engine := NewEngine(cfg, st, hub, logging.NewNop(), onComplete)
	ctx, cancel := context.WithCancel(context.Background())
	engine.Start(ctx)
	cleanup := func() {
		engine.Stop()
		cancel()
	}
	return engine, st, cleanup
}

func TestDownloadCompletes(t *testing.T) {
	payload := make([]byte, 200*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	completed := make(chan int64, 1)
	engine, st, cleanup := newEngine(t, func(_ context.Context, id int64) { completed <- id })
	defer cleanup()

	podcast := testsupport.NewPodcast(t, st, "dl")
	episode, err := st.AddEpisode(context.Background(), &store.Episode{
		PodcastID: podcast.ID,
		GUID:      "dl-1",
		Title:     "Long Run",
		AudioURL:  server.URL + "/ep.mp3",
	})
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}

	if err := engine.Enqueue(context.Background(), episode.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := waitForStatus(t, st, episode.ID, store.StatusDownloaded)
	if done.FileSize != int64(len(payload)) {
		t.Fatalf("file size = %d, want %d", done.FileSize, len(payload))
	}
	if done.DownloadProgress != 100 {
		t.Fatalf("progress = %f, want 100", done.DownloadProgress)
	}
	info, err := os.Stat(done.LocalPath)
	if err != nil {
		t.Fatalf("stat artifact: %v", err)
	}
	if info.Size() != int64(len(payload)) {
		t.Fatalf("artifact size = %d", info.Size())
	}

	select {
	case id := <-completed:
		if id != episode.ID {
			t.Fatalf("completion for %d, want %d", id, episode.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}
}

func TestDownloadFailureRemovesPartial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	engine, st, cleanup := newEngine(t, nil)
	defer cleanup()

	podcast := testsupport.NewPodcast(t, st, "fail")
	episode, err := st.AddEpisode(context.Background(), &store.Episode{
		PodcastID: podcast.ID,
		GUID:      "fail-1",
		Title:     "Broken",
		AudioURL:  server.URL + "/missing.mp3",
	})
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}

	if err := engine.Enqueue(context.Background(), episode.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	failed := waitForStatus(t, st, episode.ID, store.StatusFailed)
	if failed.ErrorMessage == "" {
		t.Fatal("expected recorded error message")
	}
	if failed.LocalPath != "" {
		t.Fatalf("expected no artifact path, got %q", failed.LocalPath)
	}
}

func TestDownloadSizeMismatchFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Declare far more bytes than are sent.
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write(make([]byte, 10))
	}))
	defer server.Close()

	engine, st, cleanup := newEngine(t, nil)
	defer cleanup()

	podcast := testsupport.NewPodcast(t, st, "short")
	episode, err := st.AddEpisode(context.Background(), &store.Episode{
		PodcastID: podcast.ID,
		GUID:      "short-1",
		Title:     "Truncated",
		AudioURL:  server.URL + "/ep.mp3",
	})
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}

	if err := engine.Enqueue(context.Background(), episode.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForStatus(t, st, episode.ID, store.StatusFailed)
}

func TestEnqueueAlreadyInFlight(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		_, _ = w.Write(make([]byte, 1024))
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		<-release
	}))
	defer server.Close()
	defer close(release)

	engine, st, cleanup := newEngine(t, nil)
	defer cleanup()

	podcast := testsupport.NewPodcast(t, st, "inflight")
	episode, err := st.AddEpisode(context.Background(), &store.Episode{
		PodcastID: podcast.ID,
		GUID:      "inflight-1",
		Title:     "Slow",
		AudioURL:  server.URL + "/ep.mp3",
	})
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}

	if err := engine.Enqueue(context.Background(), episode.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	err = engine.Enqueue(context.Background(), episode.ID)
	if !errors.Is(err, services.ErrAlreadyInFlight) {
		t.Fatalf("expected ErrAlreadyInFlight, got %v", err)
	}
}

func TestEnqueueDownloadedEpisodeRejected(t *testing.T) {
	engine, st, cleanup := newEngine(t, nil)
	defer cleanup()

	podcast := testsupport.NewPodcast(t, st, "done")
	episode, err := st.AddEpisode(context.Background(), &store.Episode{
		PodcastID: podcast.ID,
		GUID:      "done-1",
		Title:     "Done",
		AudioURL:  "https://cdn.example.com/ep.mp3",
	})
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}
	ctx := context.Background()
	if _, err := st.BeginDownload(ctx, episode.ID); err != nil {
		t.Fatalf("BeginDownload: %v", err)
	}
	if err := st.MarkDownloaded(ctx, episode.ID, "/tmp/ep.mp3", 1); err != nil {
		t.Fatalf("MarkDownloaded: %v", err)
	}

	err = engine.Enqueue(ctx, episode.ID)
	if !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelInFlightReturnsToPending(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		_, _ = w.Write(make([]byte, 1024))
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		started <- struct{}{}
		<-release
	}))
	defer server.Close()
	defer close(release)

	engine, st, cleanup := newEngine(t, nil)
	defer cleanup()

	podcast := testsupport.NewPodcast(t, st, "cancel")
	episode, err := st.AddEpisode(context.Background(), &store.Episode{
		PodcastID: podcast.ID,
		GUID:      "cancel-1",
		Title:     "Cancelled",
		AudioURL:  server.URL + "/ep.mp3",
	})
	if err != nil {
		t.Fatalf("AddEpisode: %v", err)
	}

	if err := engine.Enqueue(context.Background(), episode.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started

	if err := engine.Cancel(episode.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	pending := waitForStatus(t, st, episode.ID, store.StatusPending)
	if pending.LocalPath != "" {
		t.Fatalf("expected cleared local path, got %q", pending.LocalPath)
	}
	if pending.DownloadProgress != 0 {
		t.Fatalf("progress = %f, want 0", pending.DownloadProgress)
	}
}

func TestCancelNotInFlight(t *testing.T) {
	engine, _, cleanup := newEngine(t, nil)
	defer cleanup()

	err := engine.Cancel(999)
	if !errors.Is(err, services.ErrNotInFlight) {
		t.Fatalf("expected ErrNotInFlight, got %v", err)
	}
}

func TestEnqueueForPodcastHonorsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 128))
	}))
	defer server.Close()

	engine, st, cleanup := newEngine(t, nil)
	defer cleanup()
	ctx := context.Background()

	podcast, err := st.AddPodcast(ctx, &store.Podcast{
		Title:        "Limited",
		RSSURL:       "https://feeds.example.com/limited.xml",
		EpisodeLimit: 2,
	})
	if err != nil {
		t.Fatalf("AddPodcast: %v", err)
	}

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"a", "b", "c", "d"} {
		pub := base.AddDate(0, 0, i)
		if _, err := st.AddEpisode(ctx, &store.Episode{
			PodcastID: podcast.ID,
			GUID:      "lim-" + name,
			Title:     name,
			AudioURL:  server.URL + "/" + name + ".mp3",
			PubDate:   &pub,
		}); err != nil {
			t.Fatalf("AddEpisode: %v", err)
		}
	}

	queued, err := engine.EnqueueForPodcast(ctx, podcast)
	if err != nil {
		t.Fatalf("EnqueueForPodcast: %v", err)
	}
	if queued != 2 {
		t.Fatalf("queued = %d, want 2", queued)
	}
}

func TestWithinTolerance(t *testing.T) {
	cases := []struct {
		got, expected int64
		tolerance     int
		want          bool
	}{
		{100, 100, 0, true},
		{95, 100, 10, true},
		{89, 100, 10, false},
		{110, 100, 10, true},
		{111, 100, 10, false},
		{5, 0, 10, true},
	}
	for _, tc := range cases {
		if got := withinTolerance(tc.got, tc.expected, tc.tolerance); got != tc.want {
			t.Fatalf("withinTolerance(%d, %d, %d) = %v, want %v", tc.got, tc.expected, tc.tolerance, got, tc.want)
		}
	}
}

func TestExtensionFromURL(t *testing.T) {
	cases := map[string]string{
		"https://cdn.example.com/ep.mp3":           ".mp3",
		"https://cdn.example.com/ep.m4a?auth=abc":  ".m4a",
		"https://cdn.example.com/ep":               ".mp3",
		"https://cdn.example.com/ep.php?file=x":    ".mp3",
		"https://cdn.example.com/ep.OGG#fragment":  ".ogg",
		"https://cdn.example.com/dir.weird/stream": ".mp3",
	}
	for input, want := range cases {
		if got := extensionFromURL(input); got != want {
			t.Fatalf("extensionFromURL(%q) = %q, want %q", input, got, want)
		}
	}
}
