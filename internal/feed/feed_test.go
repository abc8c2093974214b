package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stride/internal/logging"
	"stride/internal/services"
	"stride/internal/testsupport"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Trail Talk</title>
    <description>Weekly running stories</description>
    <image><url>https://cdn.example.com/cover.jpg</url></image>
    <item>
      <title>Episode One</title>
      <guid>ep-001</guid>
      <pubDate>Mon, 03 Aug 2026 08:00:00 GMT</pubDate>
      <enclosure url="https://cdn.example.com/ep1.mp3" length="1048576" type="audio/mpeg"/>
      <itunes:duration>42:30</itunes:duration>
    </item>
    <item>
      <title>No Audio Here</title>
      <guid>ep-002</guid>
    </item>
    <item>
      <title>Episode Three</title>
      <guid>ep-003</guid>
      <enclosure url="https://cdn.example.com/ep3.m4a" length="bad" type="audio/mp4"/>
      <itunes:duration>3600</itunes:duration>
    </item>
  </channel>
</rss>`

func TestFetchParsesItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	client := NewClient(5*time.Second, logging.NewNop())
	result, err := client.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if result.Metadata.Title != "Trail Talk" {
		t.Fatalf("title = %q", result.Metadata.Title)
	}
	if result.Metadata.ImageURL != "https://cdn.example.com/cover.jpg" {
		t.Fatalf("image = %q", result.Metadata.ImageURL)
	}
	if len(result.Items) != 2 {
		t.Fatalf("items = %d, want 2 (item without enclosure skipped)", len(result.Items))
	}

	first := result.Items[0]
	if first.GUID != "ep-001" || first.AudioURL != "https://cdn.example.com/ep1.mp3" {
		t.Fatalf("unexpected first item: %+v", first)
	}
	if first.FileSize != 1048576 {
		t.Fatalf("file size = %d", first.FileSize)
	}
	if first.DurationSeconds != 42*60+30 {
		t.Fatalf("duration = %d", first.DurationSeconds)
	}
	if first.PubDate == nil {
		t.Fatal("expected parsed pub date")
	}

	third := result.Items[1]
	if third.DurationSeconds != 3600 {
		t.Fatalf("plain-seconds duration = %d", third.DurationSeconds)
	}
	if third.FileSize != 0 {
		t.Fatalf("unparsable length should be 0, got %d", third.FileSize)
	}
}

func TestFetchUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(5*time.Second, logging.NewNop())
	_, err := client.Fetch(context.Background(), server.URL)
	if !errors.Is(err, services.ErrFeedUnreachable) {
		t.Fatalf("expected ErrFeedUnreachable, got %v", err)
	}
}

func TestFetchConnectionRefused(t *testing.T) {
	client := NewClient(time.Second, logging.NewNop())
	_, err := client.Fetch(context.Background(), "http://127.0.0.1:1/feed.xml")
	if !errors.Is(err, services.ErrFeedUnreachable) {
		t.Fatalf("expected ErrFeedUnreachable, got %v", err)
	}
}

func TestFetchUnparsable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>not a feed</body></html>"))
	}))
	defer server.Close()

	client := NewClient(5*time.Second, logging.NewNop())
	_, err := client.Fetch(context.Background(), server.URL)
	if !errors.Is(err, services.ErrFeedUnparsable) {
		t.Fatalf("expected ErrFeedUnparsable, got %v", err)
	}
}

func TestParseDuration(t *testing.T) {
	cases := map[string]int64{
		"01:02:03": 3723,
		"42:30":    2550,
		"90":       90,
		"":         0,
		"bad":      0,
		"1:2:3:4":  0,
	}
	for input, want := range cases {
		if got := parseDuration(input); got != want {
			t.Fatalf("parseDuration(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestRefreshInsertsOnlyUnseenGUIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	client := NewClient(5*time.Second, logging.NewNop())
	refresher := NewRefresher(client, st, logging.NewNop())
	ctx := context.Background()

	podcast, err := refresher.Subscribe(ctx, server.URL, 5, true)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if podcast.Title != "Trail Talk" {
		t.Fatalf("title = %q", podcast.Title)
	}

	episodes, err := st.ListEpisodes(ctx, podcast.ID)
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("episodes = %d, want 2", len(episodes))
	}

	// Second refresh over the same feed adds nothing.
	result, err := refresher.Refresh(ctx, podcast)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if result.NewEpisodes != 0 {
		t.Fatalf("new episodes = %d, want 0", result.NewEpisodes)
	}

	updated, err := st.GetPodcast(ctx, podcast.ID)
	if err != nil {
		t.Fatalf("GetPodcast: %v", err)
	}
	if updated.LastChecked == nil {
		t.Fatal("expected last_checked to be set")
	}
}

func TestSubscribeRejectsDuplicate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	refresher := NewRefresher(NewClient(5*time.Second, logging.NewNop()), st, logging.NewNop())
	ctx := context.Background()

	if _, err := refresher.Subscribe(ctx, server.URL, 5, true); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := refresher.Subscribe(ctx, server.URL, 5, true); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("duplicate subscribe error = %v, want ErrConflict", err)
	}
}
