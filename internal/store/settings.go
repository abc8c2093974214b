package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting returns a single runtime override value. The bool reports
// whether the key exists.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return value, true, nil
}

// AllSettings returns every runtime override.
func (s *Store) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// PutSetting upserts a runtime override.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key,
		value,
	)
	if err != nil {
		return fmt.Errorf("put setting: %w", err)
	}
	return nil
}

// DeleteSetting removes one override.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.execWithRetry(ctx, `DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	return nil
}

// ClearSettings removes every runtime override, restoring file configuration.
func (s *Store) ClearSettings(ctx context.Context) error {
	_, err := s.execWithRetry(ctx, `DELETE FROM settings`)
	if err != nil {
		return fmt.Errorf("clear settings: %w", err)
	}
	return nil
}
