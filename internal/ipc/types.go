package ipc

import (
	"stride/internal/api"
	"stride/internal/device"
	"stride/internal/storage"
)

// Podcast mirrors the HTTP API podcast DTO for internal IPC callers.
type Podcast = api.Podcast

// Episode mirrors the HTTP API episode DTO.
type Episode = api.Episode

// SyncRun mirrors the HTTP API sync run DTO.
type SyncRun = api.SyncRun

// DeviceInfo describes the detected sync target.
type DeviceInfo = device.Info

// StartRequest starts the daemon's background services.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon's background services.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents the daemon runtime snapshot.
type StatusResponse struct {
	Running         bool       `json:"running"`
	PID             int        `json:"pid"`
	DatabasePath    string     `json:"database_path"`
	LockPath        string     `json:"lock_path"`
	SocketPath      string     `json:"socket_path"`
	ActiveDownloads int        `json:"active_downloads"`
	Podcasts        int        `json:"podcasts"`
	Episodes        int        `json:"episodes"`
	Pending         int        `json:"pending"`
	Downloading     int        `json:"downloading"`
	Downloaded      int        `json:"downloaded"`
	Failed          int        `json:"failed"`
	Synced          int        `json:"synced"`
	Device          DeviceInfo `json:"device"`
}

// PodcastAddRequest subscribes to a feed.
type PodcastAddRequest struct {
	RSSURL       string `json:"rss_url"`
	EpisodeLimit int    `json:"episode_limit"`
	AutoDownload *bool  `json:"auto_download"`
}

// PodcastAddResponse returns the created subscription.
type PodcastAddResponse struct {
	Podcast Podcast `json:"podcast"`
}

// PodcastListRequest lists subscriptions.
type PodcastListRequest struct{}

// PodcastListResponse contains all subscriptions.
type PodcastListResponse struct {
	Podcasts []Podcast `json:"podcasts"`
}

// PodcastGetRequest fetches one subscription by id.
type PodcastGetRequest struct {
	ID int64 `json:"id"`
}

// PodcastGetResponse contains a single subscription.
type PodcastGetResponse struct {
	Podcast Podcast `json:"podcast"`
}

// PodcastUpdateRequest changes a subscription's limit or auto-download flag.
// Nil fields are left unchanged.
type PodcastUpdateRequest struct {
	ID           int64 `json:"id"`
	EpisodeLimit *int  `json:"episode_limit"`
	AutoDownload *bool `json:"auto_download"`
}

// PodcastUpdateResponse returns the updated subscription.
type PodcastUpdateResponse struct {
	Podcast Podcast `json:"podcast"`
}

// PodcastRemoveRequest unsubscribes and deletes local artifacts.
type PodcastRemoveRequest struct {
	ID int64 `json:"id"`
}

// PodcastRemoveResponse indicates removal result.
type PodcastRemoveResponse struct {
	Removed bool `json:"removed"`
}

// RefreshRequest refetches feeds. ID zero refreshes every subscription.
type RefreshRequest struct {
	ID int64 `json:"id"`
}

// RefreshResult summarizes one feed refresh.
type RefreshResult struct {
	PodcastID   int64 `json:"podcast_id"`
	NewEpisodes int   `json:"new_episodes"`
	TotalItems  int   `json:"total_items"`
}

// RefreshResponse reports per-feed refresh outcomes.
type RefreshResponse struct {
	Results []RefreshResult `json:"results"`
}

// EpisodeListRequest lists a podcast's episodes, newest first.
type EpisodeListRequest struct {
	PodcastID int64 `json:"podcast_id"`
}

// EpisodeListResponse contains episode entries.
type EpisodeListResponse struct {
	Episodes []Episode `json:"episodes"`
}

// EpisodeGetRequest fetches one episode by id.
type EpisodeGetRequest struct {
	ID int64 `json:"id"`
}

// EpisodeGetResponse contains a single episode.
type EpisodeGetResponse struct {
	Episode Episode `json:"episode"`
}

// EpisodeDownloadRequest queues an episode for transfer.
type EpisodeDownloadRequest struct {
	ID int64 `json:"id"`
}

// EpisodeDownloadResponse indicates the episode was queued.
type EpisodeDownloadResponse struct {
	Queued bool `json:"queued"`
}

// DownloadNewRequest queues a podcast's newest undownloaded episodes.
type DownloadNewRequest struct {
	PodcastID int64 `json:"podcast_id"`
}

// DownloadNewResponse reports how many episodes were queued.
type DownloadNewResponse struct {
	Queued int `json:"queued"`
}

// EpisodeCancelRequest aborts an in-flight download.
type EpisodeCancelRequest struct {
	ID int64 `json:"id"`
}

// EpisodeCancelResponse indicates cancel result.
type EpisodeCancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// EpisodeRemoveRequest deletes an episode and its artifacts.
type EpisodeRemoveRequest struct {
	ID int64 `json:"id"`
}

// EpisodeRemoveResponse indicates removal result.
type EpisodeRemoveResponse struct {
	Removed bool `json:"removed"`
}

// EpisodeConvertRequest re-runs conversion for a downloaded episode.
type EpisodeConvertRequest struct {
	ID int64 `json:"id"`
}

// EpisodeConvertResponse indicates conversion result.
type EpisodeConvertResponse struct {
	Converted bool `json:"converted"`
}

// SyncStartRequest runs a device reconciliation. PodcastID nil syncs
// every subscription.
type SyncStartRequest struct {
	PodcastID *int64 `json:"podcast_id"`
}

// SyncStartResponse returns the completed run record.
type SyncStartResponse struct {
	Run SyncRun `json:"run"`
}

// SyncHistoryRequest fetches recent sync runs, newest first.
type SyncHistoryRequest struct {
	Limit int `json:"limit"`
}

// SyncHistoryResponse contains sync run records.
type SyncHistoryResponse struct {
	Runs []SyncRun `json:"runs"`
}

// DeviceStatusRequest probes for the sync target.
type DeviceStatusRequest struct{}

// DeviceStatusResponse reports detection results.
type DeviceStatusResponse struct {
	Info DeviceInfo `json:"info"`
}

// StorageStatsRequest fetches disk and library usage.
type StorageStatsRequest struct{}

// StorageStatsResponse reports disk totals and directory sizes.
type StorageStatsResponse struct {
	Stats storage.DiskStats `json:"stats"`
}

// StorageBreakdownRequest fetches per-podcast usage.
type StorageBreakdownRequest struct{}

// StorageBreakdownResponse reports per-podcast usage, largest first.
type StorageBreakdownResponse struct {
	Podcasts []storage.PodcastUsage `json:"podcasts"`
}

// CleanupRequest runs a janitor pass: failed, orphans, age, cap, or all.
type CleanupRequest struct {
	Pass string `json:"pass"`
}

// CleanupResponse tallies the pass.
type CleanupResponse struct {
	Result storage.CleanupResult `json:"result"`
}

// SettingsGetRequest fetches persisted setting overrides.
type SettingsGetRequest struct{}

// SettingsGetResponse lists overrides plus the full set of adjustable keys.
type SettingsGetResponse struct {
	Settings map[string]string `json:"settings"`
	Keys     []string          `json:"keys"`
}

// SettingsUpdateRequest validates and persists setting overrides.
type SettingsUpdateRequest struct {
	Updates map[string]string `json:"updates"`
}

// SettingsUpdateResponse indicates update result.
type SettingsUpdateResponse struct {
	Updated bool `json:"updated"`
}

// SettingsResetRequest drops every override.
type SettingsResetRequest struct{}

// SettingsResetResponse indicates reset result.
type SettingsResetResponse struct {
	Reset bool `json:"reset"`
}
