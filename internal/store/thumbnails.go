package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const thumbnailColumns = `user_phone, image, loading, updated_at`

func scanThumbnail(r rowScanner) (Thumbnail, error) {
	var th Thumbnail
	var updated int64
	if err := r.Scan(&th.UserPhone, &th.Image, &th.LoadingInProgress, &updated); err != nil {
		return Thumbnail{}, err
	}
	th.UpdatedAt = fromMillis(updated)
	return th, nil
}

// Thumbnail returns the avatar image stored for a user.
func (t *Tx) Thumbnail(ctx context.Context, phone string) (Thumbnail, error) {
	if err := t.checkRead(); err != nil {
		return Thumbnail{}, err
	}
	th, err := scanThumbnail(t.q.QueryRowContext(ctx, `SELECT `+thumbnailColumns+` FROM thumbnails WHERE user_phone = ?`, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return Thumbnail{}, ErrNotFound
	}
	return th, err
}

// PutThumbnail stores the thumbnail of a user, replacing any previous one.
func (t *Tx) PutThumbnail(ctx context.Context, th *Thumbnail) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO thumbnails (user_phone, image, loading, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_phone) DO UPDATE SET
			image = excluded.image,
			loading = excluded.loading,
			updated_at = excluded.updated_at`,
		th.UserPhone, th.Image, th.LoadingInProgress, toMillis(th.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put thumbnail %q: %w", th.UserPhone, err)
	}
	t.rec.thumbnails[th.UserPhone] = *th
	t.rec.upserted(KindThumbnail, th.UserPhone)
	return nil
}
