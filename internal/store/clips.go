package store

import (
	"context"
	"database/sql"
	"fmt"
)

const clipColumns = `id, video_key, owner_phone, position, duration, mp4_url, photo_thumbnail_url, updated_at`

func scanClip(r rowScanner) (Clip, error) {
	var c Clip
	var owner sql.NullString
	var updated int64
	if err := r.Scan(&c.ID, &c.VideoKey, &owner, &c.Order, &c.Duration, &c.MP4URL, &c.PhotoThumbnailURL, &updated); err != nil {
		return Clip{}, err
	}
	c.OwnerPhone = owner.String
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

// FindClips returns the clips whose identifier is in ids.
func (t *Tx) FindClips(ctx context.Context, ids []string, scope Scope) ([]Clip, error) {
	return findIn(ctx, t, `SELECT `+clipColumns+` FROM clips`, "id", ids, scope, scanClip)
}

// Clips returns the clips of a video in order.
func (t *Tx) Clips(ctx context.Context, videoKey string) ([]Clip, error) {
	if err := t.checkRead(); err != nil {
		return nil, err
	}
	return queryAll(ctx, t.q, `SELECT `+clipColumns+` FROM clips WHERE video_key = ? ORDER BY position ASC, id ASC`,
		[]any{videoKey}, scanClip)
}

// UpsertClip inserts or updates a clip. Its video must already exist.
func (t *Tx) UpsertClip(ctx context.Context, c *Clip) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO clips (id, video_key, owner_phone, position, duration, mp4_url, photo_thumbnail_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			video_key = excluded.video_key,
			owner_phone = excluded.owner_phone,
			position = excluded.position,
			duration = excluded.duration,
			mp4_url = excluded.mp4_url,
			photo_thumbnail_url = excluded.photo_thumbnail_url,
			updated_at = excluded.updated_at`,
		c.ID, c.VideoKey, nullString(c.OwnerPhone), c.Order, c.Duration, c.MP4URL, c.PhotoThumbnailURL, toMillis(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert clip %q: %w", c.ID, err)
	}
	t.rec.clips[c.ID] = *c
	t.rec.upserted(KindClip, c.ID)
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
