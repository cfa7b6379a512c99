package importer

import (
	"context"

	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/store"
)

// Videos imports video records, identified by hash key. A video created by
// an import gets store.OrderNew; an update never touches the order, which
// belongs to the ranking pass.
type Videos struct {
	Users Users
}

func (Videos) Kind() store.Kind { return store.KindVideo }

func (Videos) Identity(rec remote.Record) (string, bool) {
	return identity(rec, FieldHashKey)
}

func (Videos) Key(v *store.Video) string { return v.HashKey }

func (Videos) Find(ctx context.Context, tx *store.Tx, ids []string, scope store.Scope) ([]store.Video, error) {
	return tx.FindVideos(ctx, ids, scope)
}

func (Videos) New(id string) *store.Video {
	return &store.Video{HashKey: id, Order: store.OrderNew}
}

func (t Videos) Sync(ctx context.Context, tx *store.Tx, v *store.Video, rec remote.Record) error {
	if owner := rec.Record(FieldOwner); owner != nil {
		u, err := t.Users.user(ctx, tx, owner)
		if err != nil {
			return err
		}
		if u != nil {
			v.OwnerPhone = u.Phone
		}
	}
	if v.OwnerPhone == "" {
		return ErrUnresolved
	}

	setString(&v.Title, rec, FieldTitle)
	if rec.Has(FieldMembership) {
		v.Membership = store.Membership(rec.Int(FieldMembership))
	}
	if rec.Has(FieldParticipation) {
		v.Participation = store.Participation(rec.Int(FieldParticipation))
	}
	setBool(&v.Liked, rec, FieldLiked)
	setInt(&v.LikesCount, rec, FieldLikesCount)
	setInt(&v.PlaysCount, rec, FieldPlaysCount)
	setInt(&v.UnseenClipsCount, rec, FieldUnseenClipsCount)
	setInt(&v.UnseenLikesCount, rec, FieldUnseenLikesCount)
	setFloat(&v.Score, rec, FieldScore)
	setString(&v.PhotoThumbnailURL, rec, FieldPhotoThumbnail)
	setString(&v.PhotoSmallThumbnailURL, rec, FieldPhotoSmallThumbnail)
	setTime(&v.CreatedAt, rec, FieldCreatedAt)
	setTime(&v.UpdatedAt, rec, FieldUpdatedAt)
	return nil
}

func (Videos) Save(ctx context.Context, tx *store.Tx, v *store.Video) error {
	return tx.UpsertVideo(ctx, v)
}

// video resolves a nested video record.
func (t Videos) video(ctx context.Context, tx *store.Tx, rec remote.Record) (*store.Video, error) {
	return FindOrCreateOne[store.Video](ctx, tx, t, rec, store.All)
}
