package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const syncRunColumns = "id, podcast_id, sync_type, episodes_added, episodes_removed, episodes_skipped, bytes_copied, outcome, error_message, started_at, completed_at"

// BeginSyncRun opens an append-only record for a reconciliation pass. The
// outcome starts as failed so an interrupted run never reads as success.
func (s *Store) BeginSyncRun(ctx context.Context, podcastID *int64, syncType SyncType) (*SyncRun, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO sync_runs (podcast_id, sync_type, outcome, started_at)
         VALUES (?, ?, ?, ?)`,
		nullableInt64(podcastID),
		syncType,
		SyncOutcomeFailed,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert sync run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetSyncRun(ctx, id)
}

// CompleteSyncRun finalizes a reconciliation record.
func (s *Store) CompleteSyncRun(ctx context.Context, run *SyncRun) error {
	if run == nil {
		return errors.New("sync run is nil")
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	_, err := s.execWithRetry(
		ctx,
		`UPDATE sync_runs
         SET episodes_added = ?, episodes_removed = ?, episodes_skipped = ?,
             bytes_copied = ?, outcome = ?, error_message = ?, completed_at = ?
         WHERE id = ?`,
		run.EpisodesAdded,
		run.EpisodesRemoved,
		run.EpisodesSkipped,
		run.BytesCopied,
		run.Outcome,
		nullableString(run.ErrorMessage),
		now.Format(time.RFC3339Nano),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("complete sync run: %w", err)
	}
	return nil
}

// GetSyncRun fetches one sync record by identifier. Returns nil when absent.
func (s *Store) GetSyncRun(ctx context.Context, id int64) (*SyncRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+syncRunColumns+` FROM sync_runs WHERE id = ?`, id)
	run, err := scanSyncRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync run: %w", err)
	}
	return run, nil
}

// ListSyncRuns returns the most recent sync records, newest first.
func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]*SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanSyncRun(scanner interface{ Scan(dest ...any) error }) (*SyncRun, error) {
	var (
		id           int64
		podcastID    sql.NullInt64
		syncType     string
		added        int
		removed      int
		skipped      int
		bytesCopied  int64
		outcome      string
		errorMessage sql.NullString
		startedRaw   string
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&podcastID,
		&syncType,
		&added,
		&removed,
		&skipped,
		&bytesCopied,
		&outcome,
		&errorMessage,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	startedAt, err := parseTimeString(startedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}

	run := &SyncRun{
		ID:              id,
		Type:            SyncType(syncType),
		EpisodesAdded:   added,
		EpisodesRemoved: removed,
		EpisodesSkipped: skipped,
		BytesCopied:     bytesCopied,
		Outcome:         SyncOutcome(outcome),
		ErrorMessage:    errorMessage.String,
		StartedAt:       startedAt,
		CompletedAt:     parseNullableTime(completedRaw),
	}
	if podcastID.Valid {
		v := podcastID.Int64
		run.PodcastID = &v
	}
	return run, nil
}
