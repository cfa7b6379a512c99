package importer

import (
	"context"
	"errors"

	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/store"
)

// Activities imports feed entries. The actor is required; the object and
// target are imported along with the activity when present.
type Activities struct {
	Users  Users
	Videos Videos
}

func (Activities) Kind() store.Kind { return store.KindActivity }

func (Activities) Identity(rec remote.Record) (string, bool) {
	return identity(rec, FieldIdentifier)
}

func (Activities) Key(a *store.Activity) string { return a.ID }

func (Activities) Find(ctx context.Context, tx *store.Tx, ids []string, scope store.Scope) ([]store.Activity, error) {
	return tx.FindActivities(ctx, ids, scope)
}

func (Activities) New(id string) *store.Activity {
	return &store.Activity{ID: id}
}

func (t Activities) Sync(ctx context.Context, tx *store.Tx, a *store.Activity, rec remote.Record) error {
	actor, err := t.Users.user(ctx, tx, rec.Record(FieldActor))
	if err != nil {
		return err
	}
	if actor == nil {
		return ErrUnresolved
	}
	a.ActorPhone = actor.Phone
	setString(&a.Verb, rec, FieldVerb)
	setTime(&a.CreatedAt, rec, FieldCreatedAt)

	a.TargetVideoKey = ""
	if target := rec.Record(FieldTarget); target != nil {
		v, err := t.Videos.video(ctx, tx, target)
		if err != nil {
			return err
		}
		if v == nil {
			return ErrUnresolved
		}
		a.TargetVideoKey = v.HashKey
	}

	a.ObjectType, a.ObjectID = store.ObjectNone, ""
	obj := rec.Record(FieldObject)
	if obj == nil {
		return nil
	}
	switch store.ObjectType(rec.String(FieldObjectType)) {
	case store.ObjectUser:
		u, err := t.Users.user(ctx, tx, obj)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUnresolved
		}
		a.ObjectType, a.ObjectID = store.ObjectUser, u.Phone
	case store.ObjectVideo:
		v, err := t.Videos.video(ctx, tx, obj)
		if err != nil {
			return err
		}
		if v == nil {
			return ErrUnresolved
		}
		a.ObjectType, a.ObjectID = store.ObjectVideo, v.HashKey
	case store.ObjectClip:
		parent := obj.String(FieldVideo)
		if parent == "" {
			parent = a.TargetVideoKey
		}
		if parent == "" {
			return ErrUnresolved
		}
		if _, err := tx.Video(ctx, parent); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUnresolved
			}
			return err
		}
		clips := Clips{Video: parent, Users: t.Users}
		c, err := FindOrCreateOne[store.Clip](ctx, tx, clips, obj, store.All)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrUnresolved
		}
		a.ObjectType, a.ObjectID = store.ObjectClip, c.ID
	default:
		return ErrUnresolved
	}
	return nil
}

func (Activities) Save(ctx context.Context, tx *store.Tx, a *store.Activity) error {
	return tx.UpsertActivity(ctx, a)
}
