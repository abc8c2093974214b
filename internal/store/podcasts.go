package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const podcastColumns = "id, title, rss_url, description, image_url, episode_limit, auto_download, last_checked, created_at, updated_at"

// AddPodcast inserts a new subscription. The rss_url must be unique.
func (s *Store) AddPodcast(ctx context.Context, podcast *Podcast) (*Podcast, error) {
	if podcast == nil {
		return nil, errors.New("podcast is nil")
	}
	if strings.TrimSpace(podcast.RSSURL) == "" {
		return nil, errors.New("rss_url is required")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	limit := podcast.EpisodeLimit
	if limit < 1 {
		limit = 1
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO podcasts (
            title, rss_url, description, image_url, episode_limit,
            auto_download, last_checked, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		podcast.Title,
		podcast.RSSURL,
		nullableString(podcast.Description),
		nullableString(podcast.ImageURL),
		limit,
		boolToInt(podcast.AutoDownload),
		nullableTime(podcast.LastChecked),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert podcast: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetPodcast(ctx, id)
}

// GetPodcast fetches a podcast by identifier. Returns nil when absent.
func (s *Store) GetPodcast(ctx context.Context, id int64) (*Podcast, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+podcastColumns+` FROM podcasts WHERE id = ?`, id)
	podcast, err := scanPodcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get podcast: %w", err)
	}
	return podcast, nil
}

// FindPodcastByURL returns the subscription matching a feed URL, or nil.
func (s *Store) FindPodcastByURL(ctx context.Context, rssURL string) (*Podcast, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+podcastColumns+` FROM podcasts WHERE rss_url = ?`, rssURL)
	podcast, err := scanPodcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find podcast by url: %w", err)
	}
	return podcast, nil
}

// ListPodcasts returns all subscriptions ordered by title.
func (s *Store) ListPodcasts(ctx context.Context) ([]*Podcast, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+podcastColumns+` FROM podcasts ORDER BY title COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list podcasts: %w", err)
	}
	defer rows.Close()

	var podcasts []*Podcast
	for rows.Next() {
		podcast, err := scanPodcast(rows)
		if err != nil {
			return nil, err
		}
		podcasts = append(podcasts, podcast)
	}
	return podcasts, rows.Err()
}

// UpdatePodcast persists changes to an existing subscription.
func (s *Store) UpdatePodcast(ctx context.Context, podcast *Podcast) error {
	if podcast == nil {
		return errors.New("podcast is nil")
	}
	podcast.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE podcasts
         SET title = ?, rss_url = ?, description = ?, image_url = ?,
             episode_limit = ?, auto_download = ?, last_checked = ?, updated_at = ?
         WHERE id = ?`,
		podcast.Title,
		podcast.RSSURL,
		nullableString(podcast.Description),
		nullableString(podcast.ImageURL),
		podcast.EpisodeLimit,
		boolToInt(podcast.AutoDownload),
		nullableTime(podcast.LastChecked),
		podcast.UpdatedAt.Format(time.RFC3339Nano),
		podcast.ID,
	)
	if err != nil {
		return fmt.Errorf("update podcast: %w", err)
	}
	return nil
}

// TouchPodcastChecked records the time of the latest feed refresh.
func (s *Store) TouchPodcastChecked(ctx context.Context, id int64, at time.Time) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE podcasts SET last_checked = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("touch podcast: %w", err)
	}
	return nil
}

// DeletePodcast removes a subscription. Episode rows cascade.
func (s *Store) DeletePodcast(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM podcasts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete podcast: %w", err)
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

func scanPodcast(scanner interface{ Scan(dest ...any) error }) (*Podcast, error) {
	var (
		id           int64
		title        string
		rssURL       string
		description  sql.NullString
		imageURL     sql.NullString
		episodeLimit int
		autoDownload sql.NullInt64
		lastChecked  sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&title,
		&rssURL,
		&description,
		&imageURL,
		&episodeLimit,
		&autoDownload,
		&lastChecked,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	createdAt, err := parseTimeString(createdRaw)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := parseTimeString(updatedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &Podcast{
		ID:           id,
		Title:        title,
		RSSURL:       rssURL,
		Description:  description.String,
		ImageURL:     imageURL.String,
		EpisodeLimit: episodeLimit,
		AutoDownload: autoDownload.Valid && autoDownload.Int64 != 0,
		LastChecked:  parseNullableTime(lastChecked),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}
