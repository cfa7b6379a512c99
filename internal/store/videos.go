package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const videoColumns = `hash_key, title, owner_phone, membership, participation, liked,
	likes_count, plays_count, unseen_clips_count, unseen_likes_count, score, sort_order,
	photo_thumbnail_url, photo_small_thumbnail_url, created_at, updated_at`

func scanVideo(r rowScanner) (Video, error) {
	var v Video
	var created, updated int64
	err := r.Scan(&v.HashKey, &v.Title, &v.OwnerPhone, &v.Membership, &v.Participation, &v.Liked,
		&v.LikesCount, &v.PlaysCount, &v.UnseenClipsCount, &v.UnseenLikesCount, &v.Score, &v.Order,
		&v.PhotoThumbnailURL, &v.PhotoSmallThumbnailURL, &created, &updated)
	if err != nil {
		return Video{}, err
	}
	v.CreatedAt = fromMillis(created)
	v.UpdatedAt = fromMillis(updated)
	return v, nil
}

// FindVideos returns the videos whose hash key is in keys.
func (t *Tx) FindVideos(ctx context.Context, keys []string, scope Scope) ([]Video, error) {
	return findIn(ctx, t, `SELECT `+videoColumns+` FROM videos`, "hash_key", keys, scope, scanVideo)
}

// Video returns one video by hash key.
func (t *Tx) Video(ctx context.Context, hashKey string) (Video, error) {
	if err := t.checkRead(); err != nil {
		return Video{}, err
	}
	v, err := scanVideo(t.q.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE hash_key = ?`, hashKey))
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	return v, err
}

// Videos returns every video in persisted display order. Videos that were
// never placed come first.
func (t *Tx) Videos(ctx context.Context) ([]Video, error) {
	if err := t.checkRead(); err != nil {
		return nil, err
	}
	return queryAll(ctx, t.q, `SELECT `+videoColumns+` FROM videos ORDER BY sort_order ASC, hash_key ASC`, nil, scanVideo)
}

// UpsertVideo inserts or updates a video. The owner must already exist.
func (t *Tx) UpsertVideo(ctx context.Context, v *Video) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO videos (hash_key, title, owner_phone, membership, participation, liked,
			likes_count, plays_count, unseen_clips_count, unseen_likes_count, score, sort_order,
			photo_thumbnail_url, photo_small_thumbnail_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash_key) DO UPDATE SET
			title = excluded.title,
			owner_phone = excluded.owner_phone,
			membership = excluded.membership,
			participation = excluded.participation,
			liked = excluded.liked,
			likes_count = excluded.likes_count,
			plays_count = excluded.plays_count,
			unseen_clips_count = excluded.unseen_clips_count,
			unseen_likes_count = excluded.unseen_likes_count,
			score = excluded.score,
			sort_order = excluded.sort_order,
			photo_thumbnail_url = excluded.photo_thumbnail_url,
			photo_small_thumbnail_url = excluded.photo_small_thumbnail_url,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		v.HashKey, v.Title, v.OwnerPhone, v.Membership, v.Participation, v.Liked,
		v.LikesCount, v.PlaysCount, v.UnseenClipsCount, v.UnseenLikesCount, v.Score, v.Order,
		v.PhotoThumbnailURL, v.PhotoSmallThumbnailURL, toMillis(v.CreatedAt), toMillis(v.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert video %q: %w", v.HashKey, err)
	}
	t.rec.videos[v.HashKey] = *v
	t.rec.upserted(KindVideo, v.HashKey)
	return nil
}
