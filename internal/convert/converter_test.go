package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stride/internal/logging"
	"stride/internal/services"
	"stride/internal/store"
	"stride/internal/testsupport"
)

func markDownloaded(t *testing.T, st *store.Store, id int64, path string) {
	t.Helper()
	ctx := context.Background()
	won, err := st.BeginDownload(ctx, id)
	if err != nil || !won {
		t.Fatalf("BeginDownload: won=%v err=%v", won, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat artifact: %v", err)
	}
	if err := st.MarkDownloaded(ctx, id, path, info.Size()); err != nil {
		t.Fatalf("MarkDownloaded: %v", err)
	}
}

func writeArtifact(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestConvertNativeMP3ShortCircuits(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Native")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "id3-tagged", time.Now())

	// ID3 header but a misleading extension: sniffing must win.
	src := writeArtifact(t, cfg.Paths.EpisodesDir, "id3-tagged.bin", append([]byte("ID3"), make([]byte, 64)...))
	markDownloaded(t, st, episode.ID, src)

	c := NewConverter(cfg, st, logging.NewNop())
	c.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		t.Fatal("ffmpeg should not run for native mp3 audio")
		return nil
	})

	if err := c.Convert(context.Background(), episode.ID); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	got, err := st.GetEpisode(context.Background(), episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got.ConvertedPath != src {
		t.Fatalf("converted path = %q, want original %q", got.ConvertedPath, src)
	}
}

func TestConvertFrameSyncDetectedAsMP3(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Raw")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "bare-frames", time.Now())

	src := writeArtifact(t, cfg.Paths.EpisodesDir, "bare-frames.dat", []byte{0xFF, 0xFB, 0x90, 0x00})
	markDownloaded(t, st, episode.ID, src)

	c := NewConverter(cfg, st, logging.NewNop())
	c.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		t.Fatal("ffmpeg should not run for mp3 frame data")
		return nil
	})
	if err := c.Convert(context.Background(), episode.ID); err != nil {
		t.Fatalf("Convert: %v", err)
	}
}

func TestConvertTranscodesForeignFormat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Foreign")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "aac episode", time.Now())

	src := writeArtifact(t, cfg.Paths.EpisodesDir, "aac-episode.m4a", []byte("not mp3 at all"))
	markDownloaded(t, st, episode.ID, src)

	var gotArgs []string
	c := NewConverter(cfg, st, logging.NewNop())
	c.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotArgs = args
		dest := args[len(args)-1]
		return os.WriteFile(dest, []byte("transcoded"), 0o644)
	})

	if err := c.Convert(context.Background(), episode.ID); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "-c:a libmp3lame") {
		t.Fatalf("missing codec flag in %q", joined)
	}
	if !strings.Contains(joined, "-b:a "+cfg.Audio.Bitrate) {
		t.Fatalf("missing bitrate flag in %q", joined)
	}

	got, err := st.GetEpisode(context.Background(), episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if filepath.Dir(got.ConvertedPath) != cfg.Paths.ConvertedDir {
		t.Fatalf("converted path %q not under %q", got.ConvertedPath, cfg.Paths.ConvertedDir)
	}
	if !strings.HasSuffix(got.ConvertedPath, ".mp3") {
		t.Fatalf("converted path %q lacks mp3 extension", got.ConvertedPath)
	}
	if _, err := os.Stat(got.ConvertedPath); err != nil {
		t.Fatalf("converted artifact missing: %v", err)
	}
}

func TestConvertFailureKeepsDownload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Flaky")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "broken", time.Now())

	src := writeArtifact(t, cfg.Paths.EpisodesDir, "broken.ogg", []byte("OggS garbage"))
	markDownloaded(t, st, episode.ID, src)

	c := NewConverter(cfg, st, logging.NewNop())
	c.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		dest := args[len(args)-1]
		_ = os.WriteFile(dest, []byte("partial"), 0o644)
		return errors.New("encoder exploded")
	})

	err := c.Convert(context.Background(), episode.ID)
	if !errors.Is(err, services.ErrConversion) {
		t.Fatalf("error = %v, want ErrConversion", err)
	}

	got, getErr := st.GetEpisode(context.Background(), episode.ID)
	if getErr != nil {
		t.Fatalf("GetEpisode: %v", getErr)
	}
	if got.Status != store.StatusDownloaded {
		t.Fatalf("status = %s, want downloaded", got.Status)
	}
	if got.ConvertedPath != "" {
		t.Fatalf("converted path should stay empty, got %q", got.ConvertedPath)
	}
	if got.ErrorMessage == "" {
		t.Fatal("conversion failure not recorded on episode")
	}
	if _, statErr := os.Stat(src); statErr != nil {
		t.Fatalf("original artifact removed: %v", statErr)
	}
	entries, _ := os.ReadDir(cfg.Paths.ConvertedDir)
	if len(entries) != 0 {
		t.Fatalf("partial output left behind: %v", entries)
	}
}

func TestConvertIdempotentWhenArtifactExists(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Repeat")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "again", time.Now())

	src := writeArtifact(t, cfg.Paths.EpisodesDir, "again.flac", []byte("fLaC data"))
	markDownloaded(t, st, episode.ID, src)
	converted := writeArtifact(t, cfg.Paths.ConvertedDir, "again.mp3", []byte("done"))
	if err := st.SetConvertedPath(context.Background(), episode.ID, converted); err != nil {
		t.Fatalf("SetConvertedPath: %v", err)
	}

	c := NewConverter(cfg, st, logging.NewNop())
	c.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		t.Fatal("ffmpeg should not run when the artifact exists")
		return nil
	})
	if err := c.Convert(context.Background(), episode.ID); err != nil {
		t.Fatalf("Convert: %v", err)
	}
}

func TestConvertFillsMissingDuration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Untimed")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "no duration", time.Now())

	src := writeArtifact(t, cfg.Paths.EpisodesDir, "no-duration.mp3", append([]byte("ID3"), make([]byte, 64)...))
	markDownloaded(t, st, episode.ID, src)

	c := NewConverter(cfg, st, logging.NewNop())
	c.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		t.Fatal("ffmpeg should not run for native mp3 audio")
		return nil
	})
	c.WithFFprobeRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		if name != cfg.FFprobeBinary() {
			t.Fatalf("binary = %q, want %q", name, cfg.FFprobeBinary())
		}
		if got := args[len(args)-1]; got != src {
			t.Fatalf("ffprobe target = %q, want %q", got, src)
		}
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "format=duration") {
			t.Fatalf("missing duration entry selector in %q", joined)
		}
		return "1931.064000\n", nil
	})

	if err := c.Convert(context.Background(), episode.ID); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	got, err := st.GetEpisode(context.Background(), episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got.DurationSeconds != 1931 {
		t.Fatalf("duration = %d, want 1931", got.DurationSeconds)
	}
}

func TestConvertKeepsFeedDuration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Timed")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "feed timed", time.Now())
	if err := st.SetDurationSeconds(context.Background(), episode.ID, 600); err != nil {
		t.Fatalf("SetDurationSeconds: %v", err)
	}

	src := writeArtifact(t, cfg.Paths.EpisodesDir, "feed-timed.mp3", append([]byte("ID3"), make([]byte, 64)...))
	markDownloaded(t, st, episode.ID, src)

	c := NewConverter(cfg, st, logging.NewNop())
	c.WithFFprobeRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		t.Fatal("ffprobe should not run when the feed supplied a duration")
		return "", nil
	})
	if err := c.Convert(context.Background(), episode.ID); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	got, err := st.GetEpisode(context.Background(), episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got.DurationSeconds != 600 {
		t.Fatalf("duration = %d, want feed value 600", got.DurationSeconds)
	}
}

func TestConvertToleratesMissingFFprobe(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Bare")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "no ffprobe", time.Now())

	src := writeArtifact(t, cfg.Paths.EpisodesDir, "no-ffprobe.mp3", append([]byte("ID3"), make([]byte, 64)...))
	markDownloaded(t, st, episode.ID, src)

	c := NewConverter(cfg, st, logging.NewNop())
	c.WithFFprobeRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		return "", errors.New("exec: \"ffprobe\": executable file not found in $PATH")
	})
	if err := c.Convert(context.Background(), episode.ID); err != nil {
		t.Fatalf("Convert should succeed without ffprobe: %v", err)
	}
	got, err := st.GetEpisode(context.Background(), episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got.DurationSeconds != 0 {
		t.Fatalf("duration = %d, want 0 when measurement unavailable", got.DurationSeconds)
	}
	if got.ConvertedPath != src {
		t.Fatalf("converted path = %q, want %q", got.ConvertedPath, src)
	}
}

func TestConvertRejectsUndownloadedEpisode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Pending")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "not yet", time.Now())

	c := NewConverter(cfg, st, logging.NewNop())
	if err := c.Convert(context.Background(), episode.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if err := c.Convert(context.Background(), episode.ID+999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
