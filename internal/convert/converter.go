// Package convert normalizes downloaded episode audio to the configured
// target format using ffmpeg. Episodes already in the target format are
// passed through untouched.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"stride/internal/config"
	"stride/internal/fileutil"
	"stride/internal/logging"
	"stride/internal/services"
	"stride/internal/store"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

type outputRunner func(ctx context.Context, name string, args ...string) (string, error)

// Converter produces playback artifacts in the configured audio format.
type Converter struct {
	cfg     *config.Config
	store   *store.Store
	logger  *slog.Logger
	run     commandRunner
	ffprobe outputRunner
}

// NewConverter constructs a converter around ffmpeg.
func NewConverter(cfg *config.Config, st *store.Store, logger *slog.Logger) *Converter {
	return &Converter{
		cfg:    cfg,
		store:  st,
		logger: logging.NewComponentLogger(logger, "convert"),
	}
}

// WithCommandRunner overrides external command execution for tests.
func (c *Converter) WithCommandRunner(r commandRunner) {
	c.run = r
}

// WithFFprobeRunner overrides ffprobe execution for tests.
func (c *Converter) WithFFprobeRunner(r outputRunner) {
	c.ffprobe = r
}

// Convert ensures a downloaded episode has a playable artifact in the target
// format. Already-converted episodes and episodes that are natively mp3
// short-circuit. Conversion failures leave the download intact and record
// the cause on the episode; the returned error is tagged ErrConversion.
func (c *Converter) Convert(ctx context.Context, episodeID int64) error {
	episode, err := c.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return err
	}
	if episode == nil {
		return services.Wrap(services.ErrNotFound, "convert", "load episode",
			fmt.Sprintf("episode %d", episodeID), nil)
	}
	if episode.Status != store.StatusDownloaded || episode.LocalPath == "" {
		return services.Wrap(services.ErrValidation, "convert", "load episode",
			fmt.Sprintf("episode %d has no downloaded artifact", episodeID), nil)
	}

	// Re-invocation is safe: an up-to-date artifact short-circuits.
	if episode.ConvertedPath != "" {
		if _, statErr := os.Stat(episode.ConvertedPath); statErr == nil {
			c.fillDuration(ctx, episode, episode.ConvertedPath)
			return nil
		}
	}

	if isTargetFormat(episode.LocalPath, c.cfg.Audio.Format) {
		// The original already satisfies the target; no second copy on disk.
		if err := c.store.SetConvertedPath(ctx, episode.ID, episode.LocalPath); err != nil {
			return err
		}
		c.logger.Debug("episode already in target format",
			logging.Int64(logging.FieldEpisodeID, episode.ID),
		)
		c.fillDuration(ctx, episode, episode.LocalPath)
		return nil
	}

	if err := os.MkdirAll(c.cfg.Paths.ConvertedDir, 0o755); err != nil {
		return services.Wrap(services.ErrConversion, "convert", "ensure dir", "", err)
	}

	outName := fileutil.EpisodeFileName(episode.Title, episode.GUID, c.cfg.Audio.Format)
	outPath := filepath.Join(c.cfg.Paths.ConvertedDir, outName)

	if err := c.transcode(ctx, episode.LocalPath, outPath); err != nil {
		_ = os.Remove(outPath)
		wrapped := services.Wrap(services.ErrConversion, "convert", "transcode", episode.LocalPath, err)
		// Graceful degradation: keep the original artifact and note the failure.
		if recErr := c.store.SetErrorMessage(ctx, episode.ID, wrapped.Error()); recErr != nil {
			c.logger.Error("record conversion failure",
				logging.Int64(logging.FieldEpisodeID, episode.ID),
				logging.Error(recErr),
			)
		}
		logging.WarnWithContext(c.logger, "conversion failed, keeping original audio", "conversion_failed",
			logging.Int64(logging.FieldEpisodeID, episode.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "episode syncs in its original format"),
		)
		return wrapped
	}

	if err := c.store.SetConvertedPath(ctx, episode.ID, outPath); err != nil {
		return err
	}
	c.logger.Info("episode converted",
		logging.Int64(logging.FieldEpisodeID, episode.ID),
		logging.String("output", outPath),
	)
	c.fillDuration(ctx, episode, outPath)
	return nil
}

// fillDuration backfills duration_seconds from the audio itself when the
// feed omitted an episode duration. ffprobe is optional, so failures here
// only log.
func (c *Converter) fillDuration(ctx context.Context, episode *store.Episode, audioPath string) {
	if episode.DurationSeconds > 0 {
		return
	}
	seconds, err := c.measureDuration(ctx, audioPath)
	if err != nil {
		c.logger.Debug("duration measurement skipped",
			logging.Int64(logging.FieldEpisodeID, episode.ID),
			logging.Error(err),
		)
		return
	}
	if seconds <= 0 {
		return
	}
	if err := c.store.SetDurationSeconds(ctx, episode.ID, seconds); err != nil {
		c.logger.Error("record episode duration",
			logging.Int64(logging.FieldEpisodeID, episode.ID),
			logging.Error(err),
		)
	}
}

func (c *Converter) measureDuration(ctx context.Context, audioPath string) (int64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	}
	var out string
	if c.ffprobe != nil {
		raw, err := c.ffprobe(ctx, c.cfg.FFprobeBinary(), args...)
		if err != nil {
			return 0, err
		}
		out = raw
	} else {
		cmd := exec.CommandContext(ctx, c.cfg.FFprobeBinary(), args...) //nolint:gosec
		raw, err := cmd.Output()
		if err != nil {
			return 0, fmt.Errorf("ffprobe duration: %w", err)
		}
		out = string(raw)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(out), err)
	}
	return int64(math.Round(seconds)), nil
}

func (c *Converter) transcode(ctx context.Context, source, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", c.cfg.Audio.Bitrate,
		dest,
	}
	if c.run != nil {
		return c.run(ctx, c.cfg.FFmpegBinary(), args...)
	}
	cmd := exec.CommandContext(ctx, c.cfg.FFmpegBinary(), args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg transcode: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// isTargetFormat sniffs the file content for the target container before
// falling back to the extension. Feeds lie about extensions often enough
// that sniffing is worth the read.
func isTargetFormat(path, format string) bool {
	if format != "mp3" {
		return false
	}
	if sniffsAsMP3(path) {
		return true
	}
	return strings.EqualFold(filepath.Ext(path), ".mp3")
}

// sniffsAsMP3 reports whether the file starts with an ID3v2 tag or an MPEG
// audio frame header.
func sniffsAsMP3(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, 3)
	if _, err := f.Read(header); err != nil {
		return false
	}
	if string(header) == "ID3" {
		return true
	}
	// MPEG frame sync: 11 set bits.
	return header[0] == 0xFF && header[1]&0xE0 == 0xE0
}
