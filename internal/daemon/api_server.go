package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"stride/internal/api"
	"stride/internal/config"
	"stride/internal/logging"
	"stride/internal/services"
	"stride/internal/store"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.auth(srv.handleStatus))
	mux.HandleFunc("/api/podcasts", srv.auth(srv.handlePodcasts))
	mux.HandleFunc("/api/podcasts/", srv.auth(srv.handlePodcast))
	mux.HandleFunc("/api/episodes", srv.auth(srv.handleEpisodes))
	mux.HandleFunc("/api/episodes/", srv.auth(srv.handleEpisode))
	mux.HandleFunc("/api/sync", srv.auth(srv.handleSync))
	mux.HandleFunc("/api/sync/history", srv.auth(srv.handleSyncHistory))
	mux.HandleFunc("/api/device", srv.auth(srv.handleDevice))
	mux.HandleFunc("/api/storage", srv.auth(srv.handleStorage))
	mux.HandleFunc("/api/storage/breakdown", srv.auth(srv.handleStorageBreakdown))
	mux.HandleFunc("/api/cleanup", srv.auth(srv.handleCleanup))
	mux.HandleFunc("/api/settings", srv.auth(srv.handleSettings))
	mux.HandleFunc("/api/events", srv.auth(srv.handleEvents))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) auth(next http.HandlerFunc) http.HandlerFunc {
	return authMiddleware(s.token, next)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound address, useful when binding to port 0.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

type addPodcastRequest struct {
	RSSURL       string `json:"rss_url"`
	EpisodeLimit int    `json:"episode_limit"`
	AutoDownload *bool  `json:"auto_download"`
}

func (s *apiServer) handlePodcasts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		podcasts, err := s.daemon.ListPodcasts(r.Context())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"podcasts": api.FromPodcasts(podcasts)})
	case http.MethodPost:
		var req addPodcastRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		autoDownload := s.daemon.Config().Podcasts.AutoDownload
		if req.AutoDownload != nil {
			autoDownload = *req.AutoDownload
		}
		podcast, err := s.daemon.Subscribe(r.Context(), req.RSSURL, req.EpisodeLimit, autoDownload)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, api.FromPodcast(podcast))
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type updatePodcastRequest struct {
	EpisodeLimit *int  `json:"episode_limit"`
	AutoDownload *bool `json:"auto_download"`
}

// handlePodcast routes /api/podcasts/{id} and its sub-actions:
// /refresh and /download.
func (s *apiServer) handlePodcast(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/podcasts/")
	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid podcast id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		podcast, err := s.daemon.GetPodcast(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if podcast == nil {
			s.writeError(w, http.StatusNotFound, "podcast not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromPodcast(podcast))
	case action == "" && r.Method == http.MethodPatch:
		var req updatePodcastRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		podcast, err := s.daemon.UpdatePodcast(r.Context(), id, req.EpisodeLimit, req.AutoDownload)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromPodcast(podcast))
	case action == "" && r.Method == http.MethodDelete:
		if err := s.daemon.DeletePodcast(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	case action == "refresh" && r.Method == http.MethodPost:
		result, err := s.daemon.RefreshPodcast(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	case action == "download" && r.Method == http.MethodPost:
		queued, err := s.daemon.DownloadNewEpisodes(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]int{"queued": queued})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	podcastID, err := strconv.ParseInt(r.URL.Query().Get("podcast_id"), 10, 64)
	if err != nil || podcastID <= 0 {
		s.writeError(w, http.StatusBadRequest, "podcast_id query parameter is required")
		return
	}
	episodes, err := s.daemon.ListEpisodes(r.Context(), podcastID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"episodes": api.FromEpisodes(episodes)})
}

// handleEpisode routes /api/episodes/{id} and its sub-actions:
// /download, /cancel, /convert.
func (s *apiServer) handleEpisode(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/episodes/")
	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid episode id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		episode, err := s.daemon.GetEpisode(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if episode == nil {
			s.writeError(w, http.StatusNotFound, "episode not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromEpisode(episode))
	case action == "" && r.Method == http.MethodDelete:
		if err := s.daemon.DeleteEpisode(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	case action == "download" && r.Method == http.MethodPost:
		if err := s.daemon.DownloadEpisode(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
	case action == "cancel" && r.Method == http.MethodPost:
		if err := s.daemon.CancelDownload(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
	case action == "convert" && r.Method == http.MethodPost:
		if err := s.daemon.ConvertEpisode(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"converted": true})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type syncRequest struct {
	PodcastID *int64 `json:"podcast_id"`
}

func (s *apiServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req syncRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	run, err := s.daemon.SyncNow(r.Context(), req.PodcastID, store.SyncTypeManual)
	if err != nil && run == nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSyncRun(run))
}

func (s *apiServer) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.daemon.SyncHistory(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": api.FromSyncRuns(runs)})
}

func (s *apiServer) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	info, err := s.daemon.DeviceInfo(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *apiServer) handleStorage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.daemon.StorageStats(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *apiServer) handleStorageBreakdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	usage, err := s.daemon.StorageBreakdown(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"podcasts": usage})
}

func (s *apiServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	result, err := s.daemon.Cleanup(r.Context(), r.URL.Query().Get("pass"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.daemon.Settings(r.Context())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"settings": settings, "keys": SettingKeys()})
	case http.MethodPut:
		var updates map[string]string
		if err := decodeBody(r, &updates); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, err := s.daemon.UpdateSettings(r.Context(), updates); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
	case http.MethodDelete:
		if _, err := s.daemon.ResetSettings(r.Context()); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleEvents serves the hub over long-poll: since= cursor, limit=, wait=1.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	wait := query.Get("wait") == "1" || strings.EqualFold(query.Get("wait"), "true")

	fetched, next, err := s.daemon.Events().Fetch(r.Context(), since, limit, wait)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": fetched, "next": next})
}

func decodeBody(r *http.Request, target any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInvalidTransition):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrAlreadyInFlight):
		status = http.StatusConflict
	case errors.Is(err, services.ErrNotInFlight):
		status = http.StatusConflict
	case errors.Is(err, services.ErrDeviceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrFeedUnreachable), errors.Is(err, services.ErrFeedUnparsable):
		status = http.StatusBadGateway
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
