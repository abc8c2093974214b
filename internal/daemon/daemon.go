// Package daemon wires the subscription, download, conversion, sync, and
// cleanup services into one long-running process and exposes them to the
// CLI and HTTP API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"stride/internal/config"
	"stride/internal/convert"
	"stride/internal/device"
	"stride/internal/download"
	"stride/internal/events"
	"stride/internal/feed"
	"stride/internal/logging"
	"stride/internal/retention"
	"stride/internal/schedule"
	"stride/internal/services"
	"stride/internal/storage"
	"stride/internal/store"
	syncsvc "stride/internal/sync"
)

const (
	taskRefresh = "refresh"
	taskCleanup = "cleanup"
	taskSync    = "sync"
)

// Daemon coordinates the background services and enforces single-instance
// execution via a lock file.
type Daemon struct {
	base      *config.Config
	effective atomic.Pointer[config.Config]
	store     *store.Store
	logger    *slog.Logger
	hub       *events.Hub
	guard     *services.PodcastGuard

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	engine    *download.Engine
	scheduler *schedule.Scheduler
	prober    device.Prober
	hotplug   *device.HotplugMonitor
	api       *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status is the daemon's runtime snapshot.
type Status struct {
	Running         bool        `json:"running"`
	PID             int         `json:"pid"`
	DatabasePath    string      `json:"database_path"`
	LockPath        string      `json:"lock_path"`
	SocketPath      string      `json:"socket_path"`
	ActiveDownloads []int64     `json:"active_downloads,omitempty"`
	Library         store.Stats `json:"library"`
	Device          device.Info `json:"device"`
}

// New constructs a daemon and loads persisted setting overrides.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	d := &Daemon{
		base:     cfg,
		store:    st,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		hub:      events.NewHub(0),
		guard:    services.NewPodcastGuard(),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	effective, err := d.overlaySettings(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("load settings overlay: %w", err)
	}
	d.effective.Store(effective)
	return d, nil
}

// Config returns the effective configuration, base values plus any
// persisted setting overrides.
func (d *Daemon) Config() *config.Config {
	return d.effective.Load()
}

// Events exposes the daemon's event hub.
func (d *Daemon) Events() *events.Hub {
	return d.hub
}

// Start acquires the instance lock and launches the worker services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another stride daemon instance is already running")
	}

	cfg := d.Config()
	d.ctx, d.cancel = context.WithCancel(ctx)

	// Rows stranded mid-download by a crash go back to pending.
	if reset, err := d.store.ResetAllDownloading(d.ctx); err != nil {
		d.teardown()
		return fmt.Errorf("reset stale downloads: %w", err)
	} else if reset > 0 {
		d.logger.Info("reset stale downloads to pending",
			logging.Int64("count", reset),
		)
	}

	d.mu.Lock()
	d.engine = download.NewEngine(cfg, d.store, d.hub, d.logger, d.afterDownload)
	d.engine.Start(d.ctx)
	d.prober = device.NewProber(cfg, d.logger)
	d.hotplug = device.NewHotplugMonitor(d.logger, d.onDeviceEvent)
	d.scheduler = schedule.New(d.logger)
	d.mu.Unlock()

	if err := d.registerTasks(cfg); err != nil {
		d.teardown()
		return err
	}
	d.scheduler.Start(d.ctx)
	if err := d.hotplug.Start(d.ctx); err != nil {
		d.teardown()
		return err
	}

	api, err := newAPIServer(cfg, d, d.logger)
	if err != nil {
		d.teardown()
		return err
	}
	if api != nil {
		if err := api.start(d.ctx); err != nil {
			d.teardown()
			return err
		}
	}
	d.mu.Lock()
	d.api = api
	d.mu.Unlock()

	d.running.Store(true)
	d.logger.Info("stride daemon started",
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop halts the services, resets in-flight downloads, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.teardown()
	d.running.Store(false)
	d.logger.Info("stride daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has completed and Stop has not.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the daemon's runtime snapshot.
func (d *Daemon) Status(ctx context.Context) Status {
	cfg := d.Config()
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: cfg.DatabasePath(),
		LockPath:     d.lockPath,
		SocketPath:   cfg.SocketPath(),
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.Library = stats
	}
	d.mu.Lock()
	engine := d.engine
	prober := d.prober
	d.mu.Unlock()
	if engine != nil {
		status.ActiveDownloads = engine.Active()
	}
	if prober != nil {
		if info, err := prober.Detect(ctx); err == nil {
			status.Device = info
		}
	}
	return status
}

func (d *Daemon) teardown() {
	d.mu.Lock()
	scheduler := d.scheduler
	hotplug := d.hotplug
	api := d.api
	engine := d.engine
	d.scheduler = nil
	d.hotplug = nil
	d.api = nil
	d.engine = nil
	d.mu.Unlock()

	if scheduler != nil {
		scheduler.Stop()
	}
	if hotplug != nil {
		hotplug.Stop()
	}
	if api != nil {
		api.stop()
	}
	if engine != nil {
		engine.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	d.releaseLock()
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
		)
	}
}

func (d *Daemon) registerTasks(cfg *config.Config) error {
	refreshEvery := time.Duration(cfg.Podcasts.RefreshIntervalMinutes) * time.Minute
	if err := d.scheduler.Register(taskRefresh, refreshEvery, d.refreshTask); err != nil {
		return err
	}
	cleanupEvery := time.Duration(cfg.Storage.CleanupIntervalHours) * time.Hour
	if err := d.scheduler.Register(taskCleanup, cleanupEvery, d.cleanupTask); err != nil {
		return err
	}
	syncEvery := time.Duration(0)
	if cfg.Device.AutoSync {
		// Auto sync piggybacks on the refresh cadence; hotplug events and
		// download completions trigger it sooner.
		syncEvery = refreshEvery
	}
	return d.scheduler.Register(taskSync, syncEvery, d.syncTask)
}

// refreshTask refreshes every feed and queues new episodes on subscriptions
// with auto-download.
func (d *Daemon) refreshTask(ctx context.Context) {
	results, err := d.RefreshAll(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "scheduled refresh failed", "refresh_failed",
			logging.Error(err),
		)
		return
	}
	total := 0
	for _, result := range results {
		total += result.NewEpisodes
	}
	if total > 0 {
		d.logger.Info("scheduled refresh found new episodes",
			logging.Int("new_episodes", total),
		)
	}
}

func (d *Daemon) cleanupTask(ctx context.Context) {
	if _, err := d.janitor().Sweep(ctx); err != nil {
		logging.WarnWithContext(d.logger, "scheduled cleanup failed", "cleanup_failed",
			logging.Error(err),
		)
	}
}

// syncTask reconciles the device when one is mounted. An absent device is
// routine, not an error.
func (d *Daemon) syncTask(ctx context.Context) {
	if _, err := d.SyncNow(ctx, nil, store.SyncTypeAuto); err != nil {
		if errors.Is(err, services.ErrDeviceUnavailable) {
			return
		}
		logging.WarnWithContext(d.logger, "automatic sync failed", "sync_failed",
			logging.Error(err),
		)
	}
}

// afterDownload chains conversion, eviction, and auto sync behind every
// completed transfer.
func (d *Daemon) afterDownload(ctx context.Context, episodeID int64) {
	if err := d.converter().Convert(ctx, episodeID); err != nil {
		// Conversion failures degrade gracefully; the original stays usable.
		d.logger.Debug("post-download conversion failed",
			logging.Int64(logging.FieldEpisodeID, episodeID),
			logging.Error(err),
		)
	}

	episode, err := d.store.GetEpisode(ctx, episodeID)
	if err != nil || episode == nil {
		return
	}
	podcast, err := d.store.GetPodcast(ctx, episode.PodcastID)
	if err != nil || podcast == nil {
		return
	}
	if _, err := d.policy().EnforcePodcast(ctx, podcast); err != nil {
		logging.WarnWithContext(d.logger, "post-download eviction failed", "eviction_failed",
			logging.Int64(logging.FieldPodcastID, podcast.ID),
			logging.Error(err),
		)
	}

	if d.Config().Device.AutoSync {
		d.triggerSync()
	}
}

// onDeviceEvent reacts to USB block hotplug: republish as a device event and
// kick a sync when a device arrives with auto_sync enabled.
func (d *Daemon) onDeviceEvent(ctx context.Context, action string) {
	d.hub.Publish(events.Event{
		Kind:    events.KindDeviceState,
		Message: "block device " + action,
	})
	if action == "add" && d.Config().Device.AutoSync {
		// The volume needs a moment to mount before the prober can see it.
		go func() {
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
			d.triggerSync()
		}()
	}
}

func (d *Daemon) triggerSync() {
	d.mu.Lock()
	scheduler := d.scheduler
	d.mu.Unlock()
	if scheduler == nil {
		return
	}
	if _, err := scheduler.Trigger(taskSync); err != nil {
		d.logger.Debug("sync trigger skipped",
			logging.Error(err),
		)
	}
}

// Stateless collaborators are rebuilt per call so setting overrides apply
// without a restart. Only the engine and scheduler pin a config snapshot.

func (d *Daemon) refresher() *feed.Refresher {
	cfg := d.Config()
	client := feed.NewClient(time.Duration(cfg.Podcasts.FeedTimeout)*time.Second, d.logger)
	return feed.NewRefresher(client, d.store, d.logger)
}

func (d *Daemon) converter() *convert.Converter {
	return convert.NewConverter(d.Config(), d.store, d.logger)
}

func (d *Daemon) policy() *retention.Policy {
	policy := retention.NewPolicy(d.Config(), d.store, d.guard, d.logger)
	d.mu.Lock()
	engine := d.engine
	d.mu.Unlock()
	if engine != nil {
		policy.SetCanceller(engine)
	}
	return policy
}

func (d *Daemon) reconciler() *syncsvc.Reconciler {
	d.mu.Lock()
	prober := d.prober
	d.mu.Unlock()
	if prober == nil {
		prober = device.NewProber(d.Config(), d.logger)
	}
	return syncsvc.NewReconciler(d.Config(), d.store, prober, d.hub, d.guard, d.logger)
}

func (d *Daemon) janitor() *storage.Manager {
	return storage.NewManager(d.Config(), d.store, d.logger)
}
