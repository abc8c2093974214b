package store

import (
	"strings"
	"time"
)

// Status represents the download lifecycle of an episode.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusFailed      Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusDownloaded,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// allowedTransitions is the episode lifecycle edge table. downloading → pending
// covers user cancellation; failed → downloading covers explicit retries.
var allowedTransitions = map[Status][]Status{
	StatusPending:     {StatusDownloading},
	StatusDownloading: {StatusDownloaded, StatusFailed, StatusPending},
	StatusFailed:      {StatusDownloading},
	StatusDownloaded:  {},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Podcast represents a feed subscription persisted in SQLite.
type Podcast struct {
	ID           int64
	Title        string
	RSSURL       string
	Description  string
	ImageURL     string
	EpisodeLimit int
	AutoDownload bool
	LastChecked  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Episode represents a single feed item and its local artifacts.
type Episode struct {
	ID               int64
	PodcastID        int64
	GUID             string
	Title            string
	Description      string
	AudioURL         string
	PubDate          *time.Time
	DurationSeconds  int64
	FileSize         int64
	Status           Status
	DownloadProgress float64
	LocalPath        string
	ConvertedPath    string
	SyncedToDevice   bool
	SyncDate         *time.Time
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasArtifact reports whether the episode has a playable local file.
func (e *Episode) HasArtifact() bool {
	return e != nil && e.Status == StatusDownloaded && (e.ConvertedPath != "" || e.LocalPath != "")
}

// ArtifactPath returns the preferred playable file: the converted artifact
// when present, otherwise the original download.
func (e *Episode) ArtifactPath() string {
	if e == nil {
		return ""
	}
	if e.ConvertedPath != "" {
		return e.ConvertedPath
	}
	return e.LocalPath
}

// SyncOutcome classifies a finished sync run.
type SyncOutcome string

const (
	SyncOutcomeSuccess SyncOutcome = "success"
	SyncOutcomePartial SyncOutcome = "partial"
	SyncOutcomeFailed  SyncOutcome = "failed"
)

// SyncType distinguishes operator-triggered runs from scheduled ones.
type SyncType string

const (
	SyncTypeManual SyncType = "manual"
	SyncTypeAuto   SyncType = "auto"
)

// SyncRun is an append-only record of one reconciliation pass.
type SyncRun struct {
	ID              int64
	PodcastID       *int64
	Type            SyncType
	EpisodesAdded   int
	EpisodesRemoved int
	EpisodesSkipped int
	BytesCopied     int64
	Outcome         SyncOutcome
	ErrorMessage    string
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// Stats aggregates episode counts per lifecycle state.
type Stats struct {
	Podcasts    int
	Episodes    int
	Pending     int
	Downloading int
	Downloaded  int
	Failed      int
	Synced      int
}
