package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SetSyncState records a sync checkpoint value.
func (t *Tx) SetSyncState(ctx context.Context, key, value string) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// SyncState returns a sync checkpoint value, or ErrNotFound.
func (t *Tx) SyncState(ctx context.Context, key string) (string, error) {
	if err := t.checkRead(); err != nil {
		return "", err
	}
	var value string
	err := t.q.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}
