// Package download runs the bounded transfer engine that moves episode audio
// from feed CDNs onto local disk.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"stride/internal/config"
	"stride/internal/events"
	"stride/internal/fileutil"
	"stride/internal/logging"
	"stride/internal/services"
	"stride/internal/store"
)

const (
	chunkSize               = 64 * 1024
	progressPersistInterval = 2 * time.Second
	progressBucketPercent   = 5
)

// CompletionFunc is invoked after a successful download, outside the engine
// lock. The daemon uses it to chain conversion and retention.
type CompletionFunc func(ctx context.Context, episodeID int64)

// Engine is a FIFO download pool with a global concurrency cap and
// per-episode single flight.
type Engine struct {
	cfg        *config.Config
	store      *store.Store
	hub        *events.Hub
	logger     *slog.Logger
	httpClient *http.Client
	onComplete CompletionFunc

	mu       sync.Mutex
	inFlight map[int64]*job
	queue    chan *job
	baseCtx  context.Context
	stopped  bool

	wg sync.WaitGroup
}

type job struct {
	episodeID int64
	cancel    context.CancelFunc
	cancelled bool
}

// NewEngine constructs the transfer engine. onComplete may be nil.
func NewEngine(cfg *config.Config, st *store.Store, hub *events.Hub, logger *slog.Logger, onComplete CompletionFunc) *Engine {
	return &Engine{
		cfg:        cfg,
		store:      st,
		hub:        hub,
		logger:     logging.NewComponentLogger(logger, "download"),
		httpClient: &http.Client{},
		onComplete: onComplete,
		inFlight:   make(map[int64]*job),
		queue:      make(chan *job, 256),
	}
}

// Start launches the worker pool. Workers exit when ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.baseCtx = ctx
	e.stopped = false
	e.mu.Unlock()

	workers := e.cfg.Downloads.MaxConcurrent
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}

	e.logger.Info("download engine started", logging.Int("workers", workers))
}

// Stop cancels in-flight transfers and waits for workers to drain. In-flight
// episodes return to pending via each transfer's cancel path.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	for _, j := range e.inFlight {
		j.cancelled = true
		if j.cancel != nil {
			j.cancel()
		}
	}
	close(e.queue)
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("download engine stopped")
}

// Active returns the episode ids currently claimed by the engine.
func (e *Engine) Active() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int64, 0, len(e.inFlight))
	for id := range e.inFlight {
		ids = append(ids, id)
	}
	return ids
}

// Enqueue claims an episode and adds it to the FIFO queue. Episodes already
// in flight return ErrAlreadyInFlight; episodes in a state that cannot start
// a download (downloaded, or missing) return ErrInvalidTransition.
func (e *Engine) Enqueue(ctx context.Context, episodeID int64) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return services.Wrap(services.ErrTransient, "download", "enqueue", "engine stopped", nil)
	}
	if _, exists := e.inFlight[episodeID]; exists {
		e.mu.Unlock()
		return services.Wrap(services.ErrAlreadyInFlight, "download", "enqueue",
			fmt.Sprintf("episode %d", episodeID), nil)
	}
	e.mu.Unlock()

	// The store claim is the arbiter: it only wins for pending/failed rows,
	// so two racing Enqueues cannot both queue the episode.
	won, err := e.store.BeginDownload(ctx, episodeID)
	if err != nil {
		return err
	}
	if !won {
		episode, getErr := e.store.GetEpisode(ctx, episodeID)
		if getErr == nil && episode != nil && episode.Status == store.StatusDownloading {
			return services.Wrap(services.ErrAlreadyInFlight, "download", "enqueue",
				fmt.Sprintf("episode %d", episodeID), nil)
		}
		return services.Wrap(services.ErrInvalidTransition, "download", "enqueue",
			fmt.Sprintf("episode %d cannot start downloading", episodeID), nil)
	}

	j := &job{episodeID: episodeID}
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		_ = e.store.ResetToPending(context.Background(), episodeID)
		return services.Wrap(services.ErrTransient, "download", "enqueue", "engine stopped", nil)
	}
	e.inFlight[episodeID] = j
	// Send under the lock so Stop cannot close the queue mid-send.
	select {
	case e.queue <- j:
	default:
		delete(e.inFlight, episodeID)
		e.mu.Unlock()
		_ = e.store.ResetToPending(context.Background(), episodeID)
		return services.Wrap(services.ErrTransient, "download", "enqueue", "queue full", nil)
	}
	e.mu.Unlock()

	e.publishState(episodeID, "queued")
	return nil
}

// EnqueueForPodcast queues every pending episode within the podcast's
// episode limit. Returns the number queued.
func (e *Engine) EnqueueForPodcast(ctx context.Context, podcast *store.Podcast) (int, error) {
	if podcast == nil {
		return 0, fmt.Errorf("podcast is nil")
	}
	limit := podcast.EpisodeLimit
	if limit < 1 {
		limit = e.cfg.Podcasts.DefaultEpisodeLimit
	}
	episodes, err := e.store.EpisodesNeedingDownload(ctx, podcast.ID, limit)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, episode := range episodes {
		if err := e.Enqueue(ctx, episode.ID); err != nil {
			// Losing the claim race is fine; anything else is logged and skipped.
			e.logger.Warn("skipping episode",
				logging.Int64(logging.FieldEpisodeID, episode.ID),
				logging.Error(err),
			)
			continue
		}
		queued++
	}
	return queued, nil
}

// Cancel aborts an in-flight or queued download. The transfer observes the
// cancellation at its next chunk boundary, removes the partial file, and
// returns the episode to pending.
func (e *Engine) Cancel(episodeID int64) error {
	e.mu.Lock()
	j, exists := e.inFlight[episodeID]
	if exists {
		j.cancelled = true
		if j.cancel != nil {
			j.cancel()
		}
	}
	e.mu.Unlock()

	if !exists {
		return services.Wrap(services.ErrNotInFlight, "download", "cancel",
			fmt.Sprintf("episode %d", episodeID), nil)
	}
	return nil
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-e.queue:
			if !ok {
				return
			}
			e.run(ctx, j)
		}
	}
}

func (e *Engine) run(ctx context.Context, j *job) {
	defer e.release(j.episodeID)

	e.mu.Lock()
	if j.cancelled {
		e.mu.Unlock()
		e.abortToPending(j.episodeID, "")
		return
	}
	timeout := time.Duration(e.cfg.Downloads.Timeout) * time.Second
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	j.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	episode, err := e.store.GetEpisode(jobCtx, j.episodeID)
	if err != nil || episode == nil {
		e.abortToPending(j.episodeID, "")
		return
	}

	e.publishState(episode.ID, "downloading")
	localPath, size, err := e.transfer(jobCtx, episode)
	switch {
	case err == nil:
		if markErr := e.store.MarkDownloaded(context.Background(), episode.ID, localPath, size); markErr != nil {
			e.logger.Error("persist download completion",
				logging.Int64(logging.FieldEpisodeID, episode.ID),
				logging.Error(markErr),
			)
			return
		}
		e.publishState(episode.ID, "downloaded")
		e.logger.Info("episode downloaded",
			logging.Int64(logging.FieldEpisodeID, episode.ID),
			logging.Int64("bytes", size),
		)
		if e.onComplete != nil {
			e.onComplete(context.Background(), episode.ID)
		}
	case jobCtx.Err() != nil && e.wasCancelled(j):
		// User cancel: back to pending, partial already removed.
		e.abortToPending(episode.ID, localPath)
		e.publishState(episode.ID, "cancelled")
		e.logger.Info("download cancelled", logging.Int64(logging.FieldEpisodeID, episode.ID))
	default:
		message := err.Error()
		if jobCtx.Err() != nil {
			message = fmt.Sprintf("download timed out after %s", time.Duration(e.cfg.Downloads.Timeout)*time.Second)
		}
		if localPath != "" {
			_ = os.Remove(localPath)
		}
		if markErr := e.store.MarkFailed(context.Background(), episode.ID, message); markErr != nil {
			e.logger.Error("persist download failure",
				logging.Int64(logging.FieldEpisodeID, episode.ID),
				logging.Error(markErr),
			)
		}
		e.publishState(episode.ID, "failed")
		logging.ErrorWithContext(e.logger, "episode download failed", "download_failed",
			logging.Int64(logging.FieldEpisodeID, episode.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "retry with 'stride episode download'"),
		)
	}
}

func (e *Engine) wasCancelled(j *job) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return j.cancelled
}

func (e *Engine) release(episodeID int64) {
	e.mu.Lock()
	delete(e.inFlight, episodeID)
	e.mu.Unlock()
}

func (e *Engine) abortToPending(episodeID int64, partialPath string) {
	if partialPath != "" {
		_ = os.Remove(partialPath)
	}
	if err := e.store.ResetToPending(context.Background(), episodeID); err != nil {
		e.logger.Error("reset cancelled episode",
			logging.Int64(logging.FieldEpisodeID, episodeID),
			logging.Error(err),
		)
	}
}

// transfer streams the episode audio to disk in chunks, checking for
// cancellation between chunks and coalescing progress writes.
func (e *Engine) transfer(ctx context.Context, episode *store.Episode) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, episode.AudioURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "stride/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("fetch audio: status %d", resp.StatusCode)
	}

	expected := resp.ContentLength
	if expected <= 0 && episode.FileSize > 0 {
		expected = episode.FileSize
	}

	if err := os.MkdirAll(e.cfg.Paths.EpisodesDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("ensure episodes dir: %w", err)
	}
	filename := fileutil.EpisodeFileName(episode.Title, episode.GUID, extensionFromURL(episode.AudioURL))
	localPath := filepath.Join(e.cfg.Paths.EpisodesDir, filename)

	out, err := os.Create(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("create artifact: %w", err)
	}
	defer out.Close()

	sampler := logging.NewProgressSampler(progressBucketPercent)
	lastPersist := time.Time{}
	var written int64
	buf := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return localPath, written, err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return localPath, written, fmt.Errorf("write artifact: %w", writeErr)
			}
			written += int64(n)
			e.reportProgress(ctx, episode.ID, written, expected, sampler, &lastPersist)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return localPath, written, fmt.Errorf("read audio: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		return localPath, written, fmt.Errorf("close artifact: %w", err)
	}
	if written == 0 {
		return localPath, 0, fmt.Errorf("empty response body")
	}
	if expected > 0 && !withinTolerance(written, expected, e.cfg.Downloads.SizeTolerancePercent) {
		return localPath, written, fmt.Errorf("size mismatch: got %d bytes, expected %d", written, expected)
	}

	return localPath, written, nil
}

// reportProgress persists and publishes progress on bucket boundaries, rate
// limited so slow feeds don't hammer SQLite.
func (e *Engine) reportProgress(ctx context.Context, episodeID, written, expected int64, sampler *logging.ProgressSampler, lastPersist *time.Time) {
	if expected <= 0 {
		return
	}
	percent := float64(written) / float64(expected) * 100
	if percent > 100 {
		percent = 100
	}
	now := time.Now()
	if !sampler.ShouldLog(percent, "download") && now.Sub(*lastPersist) < progressPersistInterval {
		return
	}
	*lastPersist = now
	if err := e.store.RecordProgress(ctx, episodeID, percent); err != nil {
		e.logger.Debug("record progress", logging.Error(err))
	}
	e.hub.Publish(events.Event{
		Kind:      events.KindDownloadProgress,
		EpisodeID: episodeID,
		Percent:   percent,
	})
}

func (e *Engine) publishState(episodeID int64, state string) {
	e.hub.Publish(events.Event{
		Kind:      events.KindDownloadState,
		EpisodeID: episodeID,
		Message:   state,
	})
}

func withinTolerance(got, expected int64, tolerancePercent int) bool {
	if expected <= 0 {
		return true
	}
	diff := got - expected
	if diff < 0 {
		diff = -diff
	}
	return diff*100 <= expected*int64(tolerancePercent)
}

func extensionFromURL(url string) string {
	trimmed := url
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	ext := strings.ToLower(filepath.Ext(trimmed))
	switch ext {
	case ".mp3", ".m4a", ".aac", ".ogg", ".opus", ".wav", ".flac":
		return ext
	default:
		return ".mp3"
	}
}
