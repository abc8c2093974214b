package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"stride/internal/api"
	"stride/internal/daemon"
	"stride/internal/feed"
	"stride/internal/logging"
	"stride/internal/store"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Stride", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun stride daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockPath
	resp.SocketPath = status.SocketPath
	resp.ActiveDownloads = len(status.ActiveDownloads)
	resp.Podcasts = status.Library.Podcasts
	resp.Episodes = status.Library.Episodes
	resp.Pending = status.Library.Pending
	resp.Downloading = status.Library.Downloading
	resp.Downloaded = status.Library.Downloaded
	resp.Failed = status.Library.Failed
	resp.Synced = status.Library.Synced
	resp.Device = status.Device
	return nil
}

func (s *service) PodcastAdd(req PodcastAddRequest, resp *PodcastAddResponse) error {
	autoDownload := s.daemon.Config().Podcasts.AutoDownload
	if req.AutoDownload != nil {
		autoDownload = *req.AutoDownload
	}
	podcast, err := s.daemon.Subscribe(s.ctx, req.RSSURL, req.EpisodeLimit, autoDownload)
	if err != nil {
		return err
	}
	resp.Podcast = api.FromPodcast(podcast)
	s.log().Info("podcast subscribed via IPC",
		logging.String(logging.FieldEventType, "podcast_add"),
		logging.Int64(logging.FieldPodcastID, podcast.ID))
	return nil
}

func (s *service) PodcastList(_ PodcastListRequest, resp *PodcastListResponse) error {
	podcasts, err := s.daemon.ListPodcasts(s.ctx)
	if err != nil {
		return err
	}
	resp.Podcasts = api.FromPodcasts(podcasts)
	return nil
}

func (s *service) PodcastGet(req PodcastGetRequest, resp *PodcastGetResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid podcast id %d", req.ID)
	}
	podcast, err := s.daemon.GetPodcast(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if podcast == nil {
		return fmt.Errorf("podcast %d not found", req.ID)
	}
	resp.Podcast = api.FromPodcast(podcast)
	return nil
}

func (s *service) PodcastUpdate(req PodcastUpdateRequest, resp *PodcastUpdateResponse) error {
	podcast, err := s.daemon.UpdatePodcast(s.ctx, req.ID, req.EpisodeLimit, req.AutoDownload)
	if err != nil {
		return err
	}
	resp.Podcast = api.FromPodcast(podcast)
	return nil
}

func (s *service) PodcastRemove(req PodcastRemoveRequest, resp *PodcastRemoveResponse) error {
	if err := s.daemon.DeletePodcast(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Removed = true
	s.log().Info("podcast removed via IPC",
		logging.String(logging.FieldEventType, "podcast_remove"),
		logging.Int64(logging.FieldPodcastID, req.ID))
	return nil
}

func (s *service) Refresh(req RefreshRequest, resp *RefreshResponse) error {
	if req.ID > 0 {
		result, err := s.daemon.RefreshPodcast(s.ctx, req.ID)
		if err != nil {
			return err
		}
		resp.Results = []RefreshResult{convertRefreshResult(result)}
		return nil
	}
	results, err := s.daemon.RefreshAll(s.ctx)
	if err != nil {
		return err
	}
	resp.Results = make([]RefreshResult, 0, len(results))
	for _, result := range results {
		resp.Results = append(resp.Results, convertRefreshResult(result))
	}
	return nil
}

func (s *service) EpisodeList(req EpisodeListRequest, resp *EpisodeListResponse) error {
	if req.PodcastID <= 0 {
		return fmt.Errorf("invalid podcast id %d", req.PodcastID)
	}
	episodes, err := s.daemon.ListEpisodes(s.ctx, req.PodcastID)
	if err != nil {
		return err
	}
	resp.Episodes = api.FromEpisodes(episodes)
	return nil
}

func (s *service) EpisodeGet(req EpisodeGetRequest, resp *EpisodeGetResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid episode id %d", req.ID)
	}
	episode, err := s.daemon.GetEpisode(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if episode == nil {
		return fmt.Errorf("episode %d not found", req.ID)
	}
	resp.Episode = api.FromEpisode(episode)
	return nil
}

func (s *service) EpisodeDownload(req EpisodeDownloadRequest, resp *EpisodeDownloadResponse) error {
	if err := s.daemon.DownloadEpisode(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Queued = true
	return nil
}

func (s *service) DownloadNew(req DownloadNewRequest, resp *DownloadNewResponse) error {
	queued, err := s.daemon.DownloadNewEpisodes(s.ctx, req.PodcastID)
	if err != nil {
		return err
	}
	resp.Queued = queued
	return nil
}

func (s *service) EpisodeCancel(req EpisodeCancelRequest, resp *EpisodeCancelResponse) error {
	if err := s.daemon.CancelDownload(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Cancelled = true
	return nil
}

func (s *service) EpisodeRemove(req EpisodeRemoveRequest, resp *EpisodeRemoveResponse) error {
	if err := s.daemon.DeleteEpisode(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Removed = true
	return nil
}

func (s *service) EpisodeConvert(req EpisodeConvertRequest, resp *EpisodeConvertResponse) error {
	if err := s.daemon.ConvertEpisode(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Converted = true
	return nil
}

func (s *service) SyncStart(req SyncStartRequest, resp *SyncStartResponse) error {
	s.log().Debug("sync requested via IPC")
	run, err := s.daemon.SyncNow(s.ctx, req.PodcastID, store.SyncTypeManual)
	if err != nil && run == nil {
		return err
	}
	resp.Run = api.FromSyncRun(run)
	return nil
}

func (s *service) SyncHistory(req SyncHistoryRequest, resp *SyncHistoryResponse) error {
	runs, err := s.daemon.SyncHistory(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Runs = api.FromSyncRuns(runs)
	return nil
}

func (s *service) DeviceStatus(_ DeviceStatusRequest, resp *DeviceStatusResponse) error {
	info, err := s.daemon.DeviceInfo(s.ctx)
	if err != nil {
		return err
	}
	resp.Info = info
	return nil
}

func (s *service) StorageStats(_ StorageStatsRequest, resp *StorageStatsResponse) error {
	stats, err := s.daemon.StorageStats(s.ctx)
	if err != nil {
		return err
	}
	resp.Stats = stats
	return nil
}

func (s *service) StorageBreakdown(_ StorageBreakdownRequest, resp *StorageBreakdownResponse) error {
	usage, err := s.daemon.StorageBreakdown(s.ctx)
	if err != nil {
		return err
	}
	resp.Podcasts = usage
	return nil
}

func (s *service) Cleanup(req CleanupRequest, resp *CleanupResponse) error {
	s.log().Debug("cleanup requested via IPC", logging.String("pass", req.Pass))
	result, err := s.daemon.Cleanup(s.ctx, req.Pass)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) SettingsGet(_ SettingsGetRequest, resp *SettingsGetResponse) error {
	settings, err := s.daemon.Settings(s.ctx)
	if err != nil {
		return err
	}
	resp.Settings = settings
	resp.Keys = daemon.SettingKeys()
	return nil
}

func (s *service) SettingsUpdate(req SettingsUpdateRequest, resp *SettingsUpdateResponse) error {
	if _, err := s.daemon.UpdateSettings(s.ctx, req.Updates); err != nil {
		return err
	}
	resp.Updated = true
	s.log().Info("settings updated via IPC",
		logging.String(logging.FieldEventType, "settings_update"),
		logging.Int("count", len(req.Updates)))
	return nil
}

func (s *service) SettingsReset(_ SettingsResetRequest, resp *SettingsResetResponse) error {
	if _, err := s.daemon.ResetSettings(s.ctx); err != nil {
		return err
	}
	resp.Reset = true
	return nil
}

func convertRefreshResult(result *feed.RefreshResult) RefreshResult {
	if result == nil {
		return RefreshResult{}
	}
	return RefreshResult{
		PodcastID:   result.PodcastID,
		NewEpisodes: result.NewEpisodes,
		TotalItems:  result.TotalItems,
	}
}
