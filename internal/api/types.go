package api

// Podcast describes a subscription in a transport-friendly format.
type Podcast struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	RSSURL       string `json:"rss_url"`
	Description  string `json:"description,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	EpisodeLimit int    `json:"episode_limit"`
	AutoDownload bool   `json:"auto_download"`
	LastChecked  string `json:"last_checked,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// Episode describes an episode row including download and sync state.
type Episode struct {
	ID               int64   `json:"id"`
	PodcastID        int64   `json:"podcast_id"`
	GUID             string  `json:"guid"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	AudioURL         string  `json:"audio_url"`
	PubDate          string  `json:"pub_date,omitempty"`
	DurationSeconds  int64   `json:"duration_seconds,omitempty"`
	FileSize         int64   `json:"file_size,omitempty"`
	Status           string  `json:"status"`
	DownloadProgress float64 `json:"download_progress"`
	LocalPath        string  `json:"local_path,omitempty"`
	ConvertedPath    string  `json:"converted_path,omitempty"`
	SyncedToDevice   bool    `json:"synced_to_device"`
	SyncDate         string  `json:"sync_date,omitempty"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// SyncRun summarizes one device reconciliation pass.
type SyncRun struct {
	ID              int64  `json:"id"`
	PodcastID       *int64 `json:"podcast_id,omitempty"`
	Type            string `json:"type"`
	EpisodesAdded   int    `json:"episodes_added"`
	EpisodesRemoved int    `json:"episodes_removed"`
	EpisodesSkipped int    `json:"episodes_skipped"`
	BytesCopied     int64  `json:"bytes_copied"`
	Outcome         string `json:"outcome"`
	ErrorMessage    string `json:"error_message,omitempty"`
	StartedAt       string `json:"started_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}
