package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/store"
)

// Clips imports the clips of one video.
type Clips struct {
	// Video is the hash key of the parent video, which must exist.
	Video string
	Users Users
}

func (Clips) Kind() store.Kind { return store.KindClip }

func (Clips) Identity(rec remote.Record) (string, bool) {
	return identity(rec, FieldIdentifier)
}

func (Clips) Key(c *store.Clip) string { return c.ID }

// Find ignores scope. Clip identifiers are global, so a clip the server
// moved to another video is found and reparented by Sync rather than
// recreated.
func (Clips) Find(ctx context.Context, tx *store.Tx, ids []string, _ store.Scope) ([]store.Clip, error) {
	return tx.FindClips(ctx, ids, store.All)
}

func (t Clips) New(id string) *store.Clip {
	return &store.Clip{ID: id, VideoKey: t.Video}
}

// Scope limits lookups and sweeps to the parent video.
func (t Clips) Scope() store.Scope {
	return store.InVideo(t.Video)
}

func (t Clips) Sync(ctx context.Context, tx *store.Tx, c *store.Clip, rec remote.Record) error {
	if err := parentVideo(ctx, tx, t.Video); err != nil {
		return err
	}
	c.VideoKey = t.Video
	if owner := rec.Record(FieldOwner); owner != nil {
		u, err := t.Users.user(ctx, tx, owner)
		if err != nil {
			return err
		}
		if u != nil {
			c.OwnerPhone = u.Phone
		}
	}
	setInt(&c.Order, rec, FieldOrder)
	setFloat(&c.Duration, rec, FieldDuration)
	setString(&c.MP4URL, rec, FieldMP4)
	setString(&c.PhotoThumbnailURL, rec, FieldPhotoThumbnail)
	setTime(&c.UpdatedAt, rec, FieldUpdatedAt)
	return nil
}

func (Clips) Save(ctx context.Context, tx *store.Tx, c *store.Clip) error {
	return tx.UpsertClip(ctx, c)
}

// parentVideo returns ErrUnresolved unless the video keyed hashKey exists.
func parentVideo(ctx context.Context, tx *store.Tx, hashKey string) error {
	if hashKey == "" {
		return ErrUnresolved
	}
	if _, err := tx.Video(ctx, hashKey); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("video %q: %w", hashKey, ErrUnresolved)
		}
		return err
	}
	return nil
}
