package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"stride/internal/services"
)

const episodeColumns = "id, podcast_id, guid, title, description, audio_url, pub_date, duration_seconds, file_size, status, download_progress, local_path, converted_path, synced_to_device, sync_date, error_message, created_at, updated_at"

// AddEpisode inserts a new episode row. The guid must be unique across feeds.
func (s *Store) AddEpisode(ctx context.Context, episode *Episode) (*Episode, error) {
	if episode == nil {
		return nil, errors.New("episode is nil")
	}
	if strings.TrimSpace(episode.GUID) == "" {
		return nil, errors.New("guid is required")
	}
	if strings.TrimSpace(episode.AudioURL) == "" {
		return nil, errors.New("audio_url is required")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	status := episode.Status
	if status == "" {
		status = StatusPending
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO episodes (
            podcast_id, guid, title, description, audio_url, pub_date,
            duration_seconds, file_size, status, download_progress,
            local_path, converted_path, synced_to_device, sync_date,
            error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		episode.PodcastID,
		episode.GUID,
		episode.Title,
		nullableString(episode.Description),
		episode.AudioURL,
		nullableTime(episode.PubDate),
		episode.DurationSeconds,
		episode.FileSize,
		status,
		episode.DownloadProgress,
		nullableString(episode.LocalPath),
		nullableString(episode.ConvertedPath),
		boolToInt(episode.SyncedToDevice),
		nullableTime(episode.SyncDate),
		nullableString(episode.ErrorMessage),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert episode: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetEpisode(ctx, id)
}

// GetEpisode fetches an episode by identifier. Returns nil when absent.
func (s *Store) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	episode, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return episode, nil
}

// FindEpisodeByGUID returns the episode with the given feed GUID, or nil.
func (s *Store) FindEpisodeByGUID(ctx context.Context, guid string) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE guid = ?`, guid)
	episode, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find episode by guid: %w", err)
	}
	return episode, nil
}

// ListEpisodes returns episodes for a podcast, newest publication first.
// Episodes without a publication date sort last.
func (s *Store) ListEpisodes(ctx context.Context, podcastID int64) ([]*Episode, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+episodeColumns+` FROM episodes
         WHERE podcast_id = ?
         ORDER BY pub_date IS NULL, pub_date DESC, id DESC`,
		podcastID,
	)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()
	return collectEpisodes(rows)
}

// EpisodesByStatus returns episodes matching a status set across all podcasts.
func (s *Store) EpisodesByStatus(ctx context.Context, statuses ...Status) ([]*Episode, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE status IN (`+placeholders+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("episodes by status: %w", err)
	}
	defer rows.Close()
	return collectEpisodes(rows)
}

// EpisodesNeedingDownload returns pending episodes for a podcast, newest
// first, truncated to the podcast's episode limit.
func (s *Store) EpisodesNeedingDownload(ctx context.Context, podcastID int64, limit int) ([]*Episode, error) {
	if limit < 1 {
		limit = 1
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+episodeColumns+` FROM episodes
         WHERE podcast_id = ? AND status = ?
         ORDER BY pub_date IS NULL, pub_date DESC, id DESC
         LIMIT ?`,
		podcastID,
		StatusPending,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("episodes needing download: %w", err)
	}
	defer rows.Close()
	return collectEpisodes(rows)
}

// Transition moves an episode between lifecycle states, enforcing the edge
// table. The update is conditional on the current status so concurrent
// writers cannot race past the state machine.
func (s *Store) Transition(ctx context.Context, id int64, from, to Status) error {
	if !CanTransition(from, to) {
		return services.Wrap(services.ErrInvalidTransition, "store", "transition",
			fmt.Sprintf("episode %d: %s -> %s", id, from, to), nil)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("transition episode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrInvalidTransition, "store", "transition",
			fmt.Sprintf("episode %d is no longer %s", id, from), nil)
	}
	return nil
}

// BeginDownload atomically claims an episode for downloading. Only pending
// and failed episodes can be claimed; the returned bool reports whether this
// caller won the row.
func (s *Store) BeginDownload(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, download_progress = 0, error_message = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusDownloading,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPending,
		StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("begin download: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RecordProgress persists transfer progress. The update is a no-op unless the
// episode is still downloading, which tolerates late writes from a transfer
// that lost a cancel race.
func (s *Store) RecordProgress(ctx context.Context, id int64, percent float64) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	_, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET download_progress = ?, updated_at = ? WHERE id = ? AND status = ?`,
		percent,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusDownloading,
	)
	if err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

// MarkDownloaded completes a download, recording the artifact location and
// observed size.
func (s *Store) MarkDownloaded(ctx context.Context, id int64, localPath string, size int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, download_progress = 100, local_path = ?, file_size = ?,
             error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusDownloaded,
		localPath,
		size,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusDownloading,
	)
	if err != nil {
		return fmt.Errorf("mark downloaded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrInvalidTransition, "store", "mark downloaded",
			fmt.Sprintf("episode %d is not downloading", id), nil)
	}
	return nil
}

// MarkFailed records a download failure with its cause.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, download_progress = 0, error_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusDownloading,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ResetToPending returns a downloading episode to pending after a cancel or
// daemon shutdown. Local artifact bookkeeping is cleared.
func (s *Store) ResetToPending(ctx context.Context, id int64) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, download_progress = 0, local_path = NULL, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusDownloading,
	)
	if err != nil {
		return fmt.Errorf("reset to pending: %w", err)
	}
	return nil
}

// ResetAllDownloading returns every in-flight episode to pending. Used at
// daemon startup and shutdown so interrupted transfers retry cleanly.
func (s *Store) ResetAllDownloading(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, download_progress = 0, local_path = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusDownloading,
	)
	if err != nil {
		return 0, fmt.Errorf("reset downloading: %w", err)
	}
	return res.RowsAffected()
}

// SetConvertedPath records the conversion artifact for a downloaded episode.
func (s *Store) SetConvertedPath(ctx context.Context, id int64, convertedPath string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET converted_path = ?, updated_at = ? WHERE id = ?`,
		nullableString(convertedPath),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set converted path: %w", err)
	}
	return nil
}

// SetDurationSeconds backfills a duration measured from the downloaded
// audio when the feed omitted one.
func (s *Store) SetDurationSeconds(ctx context.Context, id int64, seconds int64) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET duration_seconds = ?, updated_at = ? WHERE id = ?`,
		seconds,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set duration seconds: %w", err)
	}
	return nil
}

// SetErrorMessage records a non-fatal failure note (e.g. conversion errors)
// without changing lifecycle state.
func (s *Store) SetErrorMessage(ctx context.Context, id int64, message string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET error_message = ?, updated_at = ? WHERE id = ?`,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set error message: %w", err)
	}
	return nil
}

// MarkSynced records that the episode's artifact is on the device.
func (s *Store) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET synced_to_device = 1, sync_date = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// MarkUnsynced clears device bookkeeping after a device-side removal.
func (s *Store) MarkUnsynced(ctx context.Context, id int64) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET synced_to_device = 0, sync_date = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark unsynced: %w", err)
	}
	return nil
}

// DeleteEpisode removes an episode row. Callers are responsible for removing
// local artifacts first.
func (s *Store) DeleteEpisode(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM episodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete episode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Stats aggregates podcast and episode counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM podcasts`).Scan(&stats.Podcasts); err != nil {
		return stats, fmt.Errorf("count podcasts: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM episodes GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("count episodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.Episodes += count
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusDownloading:
			stats.Downloading = count
		case StatusDownloaded:
			stats.Downloaded = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM episodes WHERE synced_to_device = 1`).Scan(&stats.Synced); err != nil {
		return stats, fmt.Errorf("count synced: %w", err)
	}
	return stats, nil
}

func collectEpisodes(rows *sql.Rows) ([]*Episode, error) {
	var episodes []*Episode
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, episode)
	}
	return episodes, rows.Err()
}

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*Episode, error) {
	var (
		id             int64
		podcastID      int64
		guid           string
		title          string
		description    sql.NullString
		audioURL       string
		pubDate        sql.NullString
		duration       sql.NullInt64
		fileSize       sql.NullInt64
		statusStr      string
		progress       sql.NullFloat64
		localPath      sql.NullString
		convertedPath  sql.NullString
		syncedToDevice sql.NullInt64
		syncDate       sql.NullString
		errorMessage   sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&id,
		&podcastID,
		&guid,
		&title,
		&description,
		&audioURL,
		&pubDate,
		&duration,
		&fileSize,
		&statusStr,
		&progress,
		&localPath,
		&convertedPath,
		&syncedToDevice,
		&syncDate,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	status, ok := ParseStatus(statusStr)
	if !ok {
		return nil, fmt.Errorf("unknown episode status %q", statusStr)
	}

	createdAt, err := parseTimeString(createdRaw)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := parseTimeString(updatedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &Episode{
		ID:               id,
		PodcastID:        podcastID,
		GUID:             guid,
		Title:            title,
		Description:      description.String,
		AudioURL:         audioURL,
		PubDate:          parseNullableTime(pubDate),
		DurationSeconds:  duration.Int64,
		FileSize:         fileSize.Int64,
		Status:           status,
		DownloadProgress: progress.Float64,
		LocalPath:        localPath.String,
		ConvertedPath:    convertedPath.String,
		SyncedToDevice:   syncedToDevice.Valid && syncedToDevice.Int64 != 0,
		SyncDate:         parseNullableTime(syncDate),
		ErrorMessage:     errorMessage.String,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}
