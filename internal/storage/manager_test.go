package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stride/internal/config"
	"stride/internal/logging"
	"stride/internal/store"
	"stride/internal/testsupport"
)

func newManager(t *testing.T, cfg *config.Config, st *store.Store) *Manager {
	t.Helper()
	m := NewManager(cfg, st, logging.NewNop())
	m.statfs = func(string) (uint64, uint64, error) { return 10_000, 4_000, nil }
	return m
}

func seedEpisode(t *testing.T, cfg *config.Config, st *store.Store, podcastID int64, title string, age time.Duration, size int64, fail bool) *store.Episode {
	t.Helper()
	ctx := context.Background()
	episode := testsupport.NewEpisode(t, st, podcastID, title, time.Now().Add(-age))
	if won, err := st.BeginDownload(ctx, episode.ID); err != nil || !won {
		t.Fatalf("BeginDownload %s: won=%v err=%v", title, won, err)
	}
	if fail {
		if err := st.MarkFailed(ctx, episode.ID, "download interrupted"); err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}
	} else {
		path := filepath.Join(cfg.Paths.EpisodesDir, title+".mp3")
		testsupport.WriteFile(t, path, size)
		if err := st.MarkDownloaded(ctx, episode.ID, path, size); err != nil {
			t.Fatalf("MarkDownloaded: %v", err)
		}
	}
	got, err := st.GetEpisode(ctx, episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	return got
}

func TestStatsReportsDirectorySizes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Sized Show")
	seedEpisode(t, cfg, st, podcast.ID, "one", time.Hour, 300, false)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.ConvertedDir, "one.mp3"), 120)

	m := newManager(t, cfg, st)
	stats, err := m.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EpisodesBytes != 300 {
		t.Fatalf("episodes bytes = %d, want 300", stats.EpisodesBytes)
	}
	if stats.ConvertedBytes != 120 {
		t.Fatalf("converted bytes = %d, want 120", stats.ConvertedBytes)
	}
	if stats.TotalBytes != 10_000 || stats.FreeBytes != 4_000 {
		t.Fatalf("disk totals = %d/%d", stats.TotalBytes, stats.FreeBytes)
	}
	if stats.DatabaseBytes == 0 {
		t.Fatal("database size should be non-zero")
	}
	if stats.LibraryBytes() != 420 {
		t.Fatalf("library bytes = %d, want 420", stats.LibraryBytes())
	}
}

func TestBreakdownSortsBySize(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	small := testsupport.NewPodcast(t, st, "Small Show")
	big := testsupport.NewPodcast(t, st, "Big Show")
	ctx := context.Background()

	seedEpisode(t, cfg, st, small.ID, "small-ep", time.Hour, 100, false)
	bigEp := seedEpisode(t, cfg, st, big.ID, "big-ep", time.Hour, 900, false)
	if err := st.MarkSynced(ctx, bigEp.ID, time.Now()); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	m := newManager(t, cfg, st)
	usage, err := m.Breakdown(ctx)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if len(usage) != 2 {
		t.Fatalf("entries = %d, want 2", len(usage))
	}
	if usage[0].Title != "Big Show" || usage[0].Bytes != 900 {
		t.Fatalf("first entry = %+v, want Big Show/900", usage[0])
	}
	if usage[0].SyncedCount != 1 || usage[0].EpisodeCount != 1 {
		t.Fatalf("counts = %+v", usage[0])
	}
}

func TestCleanupFailedRemovesRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Broken Show")
	ctx := context.Background()

	failed := seedEpisode(t, cfg, st, podcast.ID, "failed-ep", time.Hour, 50, true)
	kept := seedEpisode(t, cfg, st, podcast.ID, "good-ep", time.Hour, 50, false)

	m := newManager(t, cfg, st)
	result, err := m.CleanupFailed(ctx)
	if err != nil {
		t.Fatalf("CleanupFailed: %v", err)
	}
	if result.EpisodesRemoved != 1 {
		t.Fatalf("removed = %d, want 1", result.EpisodesRemoved)
	}
	if ep, _ := st.GetEpisode(ctx, failed.ID); ep != nil {
		t.Fatal("failed row should be deleted")
	}
	if ep, _ := st.GetEpisode(ctx, kept.ID); ep == nil {
		t.Fatal("downloaded row should survive")
	}
}

func TestCleanupOrphansOnlyTouchesUnknownFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Tracked Show")
	ctx := context.Background()

	kept := seedEpisode(t, cfg, st, podcast.ID, "tracked", time.Hour, 80, false)
	orphan := filepath.Join(cfg.Paths.EpisodesDir, "leftover.mp3")
	testsupport.WriteFile(t, orphan, 40)
	outside := filepath.Join(testsupport.BaseDir(cfg), "unrelated.mp3")
	testsupport.WriteFile(t, outside, 40)

	m := newManager(t, cfg, st)
	result, err := m.CleanupOrphans(ctx)
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if result.FilesRemoved != 1 || result.BytesFreed != 40 {
		t.Fatalf("result = %+v, want 1 file / 40 bytes", result)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatal("orphan should be removed")
	}
	if _, err := os.Stat(kept.LocalPath); err != nil {
		t.Fatalf("tracked artifact should survive: %v", err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("file outside the data roots must never be touched: %v", err)
	}
}

func TestCleanupByAgeSkipsSynced(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.MaxAgeDays = 7
	cfg.Storage.KeepSynced = true
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Aging Show")
	ctx := context.Background()

	oldSynced := seedEpisode(t, cfg, st, podcast.ID, "old-synced", 30*24*time.Hour, 10, false)
	if err := st.MarkSynced(ctx, oldSynced.ID, time.Now()); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	oldPlain := seedEpisode(t, cfg, st, podcast.ID, "old-plain", 30*24*time.Hour, 10, false)
	fresh := seedEpisode(t, cfg, st, podcast.ID, "fresh", time.Hour, 10, false)

	m := newManager(t, cfg, st)
	result, err := m.CleanupByAge(ctx)
	if err != nil {
		t.Fatalf("CleanupByAge: %v", err)
	}
	if result.EpisodesRemoved != 1 {
		t.Fatalf("removed = %d, want 1", result.EpisodesRemoved)
	}
	if ep, _ := st.GetEpisode(ctx, oldPlain.ID); ep != nil {
		t.Fatal("old unsynced episode should be deleted")
	}
	if ep, _ := st.GetEpisode(ctx, oldSynced.ID); ep == nil {
		t.Fatal("synced episode should be protected")
	}
	if ep, _ := st.GetEpisode(ctx, fresh.ID); ep == nil {
		t.Fatal("fresh episode should survive")
	}
}

func TestCleanupByCapDeletesOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.MaxStorageMB = 1
	cfg.Storage.KeepSynced = false
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Hungry Show")
	ctx := context.Background()

	const mb = 1024 * 1024
	oldest := seedEpisode(t, cfg, st, podcast.ID, "oldest", 72*time.Hour, mb/2, false)
	middle := seedEpisode(t, cfg, st, podcast.ID, "middle", 48*time.Hour, mb/2, false)
	newest := seedEpisode(t, cfg, st, podcast.ID, "newest", 24*time.Hour, mb/2, false)

	m := newManager(t, cfg, st)
	result, err := m.CleanupByCap(ctx)
	if err != nil {
		t.Fatalf("CleanupByCap: %v", err)
	}
	if result.EpisodesRemoved != 1 {
		t.Fatalf("removed = %d, want 1", result.EpisodesRemoved)
	}
	if ep, _ := st.GetEpisode(ctx, oldest.ID); ep != nil {
		t.Fatal("oldest episode should be deleted first")
	}
	for _, keep := range []*store.Episode{middle, newest} {
		if ep, _ := st.GetEpisode(ctx, keep.ID); ep == nil {
			t.Fatalf("episode %d should survive", keep.ID)
		}
	}
}

func TestCleanupByCapProtectsSynced(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.MaxStorageMB = 1
	cfg.Storage.KeepSynced = true
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Guarded Show")
	ctx := context.Background()

	const mb = 1024 * 1024
	oldest := seedEpisode(t, cfg, st, podcast.ID, "oldest-on-watch", 72*time.Hour, mb/2, false)
	if err := st.MarkSynced(ctx, oldest.ID, time.Now()); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	middle := seedEpisode(t, cfg, st, podcast.ID, "middle", 48*time.Hour, mb/2, false)
	newest := seedEpisode(t, cfg, st, podcast.ID, "newest", 24*time.Hour, mb/2, false)

	m := newManager(t, cfg, st)
	result, err := m.CleanupByCap(ctx)
	if err != nil {
		t.Fatalf("CleanupByCap: %v", err)
	}
	if result.EpisodesRemoved != 1 {
		t.Fatalf("removed = %d, want 1", result.EpisodesRemoved)
	}
	// The oldest episode is on the device, so the next oldest goes instead.
	if ep, _ := st.GetEpisode(ctx, middle.ID); ep != nil {
		t.Fatal("oldest unsynced episode should be deleted")
	}
	kept, err := st.GetEpisode(ctx, oldest.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if kept == nil {
		t.Fatal("synced episode should be protected from the cap")
	}
	if !kept.SyncedToDevice {
		t.Fatal("protected episode should keep its synced flag")
	}
	if _, err := os.Stat(kept.LocalPath); err != nil {
		t.Fatalf("protected artifact should stay on disk: %v", err)
	}
	if ep, _ := st.GetEpisode(ctx, newest.ID); ep == nil {
		t.Fatal("newest episode should survive")
	}
}

func TestCleanupByCapUnderLimitIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.MaxStorageMB = 1000
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Tiny Show")
	seedEpisode(t, cfg, st, podcast.ID, "tiny", time.Hour, 100, false)

	m := newManager(t, cfg, st)
	result, err := m.CleanupByCap(context.Background())
	if err != nil {
		t.Fatalf("CleanupByCap: %v", err)
	}
	if result.EpisodesRemoved != 0 || result.FilesRemoved != 0 {
		t.Fatalf("result = %+v, want no-op", result)
	}
}

func TestSweepAggregates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.MaxAgeDays = 7
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Sweep Show")
	ctx := context.Background()

	seedEpisode(t, cfg, st, podcast.ID, "failed-one", time.Hour, 10, true)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.ConvertedDir, "stray.mp3"), 10)
	seedEpisode(t, cfg, st, podcast.ID, "ancient", 60*24*time.Hour, 10, false)

	m := newManager(t, cfg, st)
	result, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.EpisodesRemoved != 2 {
		t.Fatalf("episodes removed = %d, want 2", result.EpisodesRemoved)
	}
	if result.FilesRemoved < 2 {
		t.Fatalf("files removed = %d, want >= 2", result.FilesRemoved)
	}
}
