package api

import (
	"testing"
	"time"

	"stride/internal/store"
)

func TestFromPodcast(t *testing.T) {
	checked := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	podcast := &store.Podcast{
		ID:           7,
		Title:        "Trail Talk",
		RSSURL:       "https://feeds.example.com/trail.xml",
		EpisodeLimit: 5,
		AutoDownload: true,
		LastChecked:  &checked,
		CreatedAt:    time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}

	dto := FromPodcast(podcast)
	if dto.ID != 7 || dto.Title != "Trail Talk" {
		t.Fatalf("dto = %+v", dto)
	}
	if dto.LastChecked != "2026-08-01T09:30:00Z" {
		t.Fatalf("last_checked = %q", dto.LastChecked)
	}
	if dto.CreatedAt != "2026-07-01T00:00:00Z" {
		t.Fatalf("created_at = %q", dto.CreatedAt)
	}

	if got := FromPodcast(nil); got.ID != 0 {
		t.Fatalf("nil podcast should yield zero DTO, got %+v", got)
	}
}

func TestFromEpisodeOmitsUnsetTimes(t *testing.T) {
	episode := &store.Episode{
		ID:        3,
		PodcastID: 7,
		GUID:      "ep-003",
		Title:     "Third",
		AudioURL:  "https://cdn.example.com/ep3.mp3",
		Status:    store.StatusPending,
	}

	dto := FromEpisode(episode)
	if dto.PubDate != "" || dto.SyncDate != "" {
		t.Fatalf("unset times should render empty, got %+v", dto)
	}
	if dto.Status != "pending" {
		t.Fatalf("status = %q", dto.Status)
	}
}

func TestFromSyncRuns(t *testing.T) {
	started := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	completed := started.Add(time.Minute)
	runs := []*store.SyncRun{
		{
			ID:            1,
			Type:          store.SyncTypeManual,
			EpisodesAdded: 2,
			Outcome:       store.SyncOutcomeSuccess,
			StartedAt:     started,
			CompletedAt:   &completed,
		},
		nil,
	}

	dtos := FromSyncRuns(runs)
	if len(dtos) != 2 {
		t.Fatalf("dtos = %d, want 2", len(dtos))
	}
	if dtos[0].CompletedAt != "2026-08-20T12:01:00Z" {
		t.Fatalf("completed_at = %q", dtos[0].CompletedAt)
	}
	if dtos[1].ID != 0 {
		t.Fatalf("nil run should yield zero DTO, got %+v", dtos[1])
	}
}

func TestFormatTimeZero(t *testing.T) {
	if got := FormatTime(time.Time{}); got != "" {
		t.Fatalf("FormatTime(zero) = %q, want empty", got)
	}
}
