package importer

import (
	"context"

	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/store"
)

// Users imports user records, identified by phone number.
type Users struct {
	// Self is the signed-in phone number.
	Self string
	// Favorite marks every imported user as a favorite.
	Favorite bool
	// Contact marks every imported user as an address-book contact.
	Contact bool
}

func (Users) Kind() store.Kind { return store.KindUser }

func (Users) Identity(rec remote.Record) (string, bool) {
	return identity(rec, FieldPhoneNumber)
}

func (Users) Key(u *store.User) string { return u.Phone }

func (Users) Find(ctx context.Context, tx *store.Tx, ids []string, scope store.Scope) ([]store.User, error) {
	return tx.FindUsers(ctx, ids, scope)
}

func (Users) New(id string) *store.User {
	return &store.User{Phone: id}
}

// Sync copies the profile and raises the relationship when the user turns
// out to be the signed-in account or an address-book contact. A
// relationship is never lowered.
func (t Users) Sync(ctx context.Context, tx *store.Tx, u *store.User, rec remote.Record) error {
	setString(&u.FullName, rec, FieldFullName)
	setString(&u.AvatarURL, rec, FieldAvatarThumbnail)
	setTime(&u.UpdatedAt, rec, FieldUpdatedAt)
	if t.Favorite {
		u.Favorited = true
	}

	rel := store.RelationshipUnknown
	switch {
	case t.Self != "" && u.Phone == t.Self:
		rel = store.RelationshipSelf
	case t.Contact:
		rel = store.RelationshipContact
	case u.Relationship < store.RelationshipContact:
		linked, err := tx.ContactLinked(ctx, u.Phone)
		if err != nil {
			return err
		}
		if linked {
			rel = store.RelationshipContact
		}
	}
	u.Relationship = max(u.Relationship, rel)
	return nil
}

func (Users) Save(ctx context.Context, tx *store.Tx, u *store.User) error {
	return tx.UpsertUser(ctx, u)
}

// user resolves a nested user record.
func (t Users) user(ctx context.Context, tx *store.Tx, rec remote.Record) (*store.User, error) {
	return FindOrCreateOne[store.User](ctx, tx, Users{Self: t.Self}, rec, store.All)
}
