package importer

import (
	"context"
	"strings"

	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/store"
)

// Members imports the members of one video. A member is identified by the
// video and the user's phone number.
type Members struct {
	// Video is the hash key of the parent video, which must exist.
	Video string
	Users Users
}

func (Members) Kind() store.Kind { return store.KindMember }

func (t Members) Identity(rec remote.Record) (string, bool) {
	phone, ok := identity(rec.Record(FieldUser), FieldPhoneNumber)
	if !ok || t.Video == "" {
		return "", false
	}
	return store.MemberKey(t.Video, phone), true
}

func (Members) Key(m *store.Member) string { return m.Key() }

func (Members) Find(ctx context.Context, tx *store.Tx, ids []string, scope store.Scope) ([]store.Member, error) {
	return tx.FindMembers(ctx, ids, scope)
}

func (t Members) New(id string) *store.Member {
	return &store.Member{VideoKey: t.Video, UserPhone: strings.TrimPrefix(id, t.Video+"/")}
}

// Scope limits lookups and sweeps to the parent video.
func (t Members) Scope() store.Scope {
	return store.InVideo(t.Video)
}

func (t Members) Sync(ctx context.Context, tx *store.Tx, m *store.Member, rec remote.Record) error {
	if err := parentVideo(ctx, tx, t.Video); err != nil {
		return err
	}
	u, err := t.Users.user(ctx, tx, rec.Record(FieldUser))
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUnresolved
	}
	if rec.Has(FieldStatus) {
		m.Status = store.MemberStatus(rec.Int(FieldStatus))
	}
	setTime(&m.CreatedAt, rec, FieldCreatedAt)
	setTime(&m.UpdatedAt, rec, FieldUpdatedAt)
	return nil
}

func (Members) Save(ctx context.Context, tx *store.Tx, m *store.Member) error {
	return tx.UpsertMember(ctx, m)
}
