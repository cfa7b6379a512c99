package importer

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/session"
	"github.com/matheus3301/gravvy/internal/store"
)

// Contacts imports address-book people. Every phone number that
// normalizes to E.164 links the contact to a user, created if needed.
type Contacts struct {
	Self string
	// Region reads numbers written without a country code.
	Region string
}

func (Contacts) Kind() store.Kind { return store.KindContact }

func (Contacts) Identity(rec remote.Record) (string, bool) {
	return identity(rec, FieldRecordID)
}

func (Contacts) Key(c *store.Contact) string { return c.RecordID }

func (Contacts) Find(ctx context.Context, tx *store.Tx, ids []string, scope store.Scope) ([]store.Contact, error) {
	return tx.FindContacts(ctx, ids, scope)
}

func (Contacts) New(id string) *store.Contact {
	return &store.Contact{RecordID: id}
}

func (t Contacts) Sync(ctx context.Context, tx *store.Tx, c *store.Contact, rec remote.Record) error {
	setString(&c.FirstName, rec, FieldFirstName)
	setString(&c.LastName, rec, FieldLastName)
	setTime(&c.UpdatedAt, rec, FieldUpdatedAt)
	c.Section = SectionKey(c.FirstName, c.LastName)

	if !rec.Has(FieldPhones) {
		return nil
	}
	users := Users{Self: t.Self, Contact: true}
	var phones []string
	for _, raw := range stringList(rec, FieldPhones) {
		phone, err := session.NormalizePhone(raw, t.Region)
		if err != nil {
			loggerFrom(ctx).Debug("skip contact phone", zap.String("record_id", c.RecordID), zap.Error(err))
			continue
		}
		u, err := FindOrCreateOne[store.User](ctx, tx, users, remote.Record{FieldPhoneNumber: phone}, store.All)
		if err != nil {
			return err
		}
		if u != nil {
			phones = append(phones, u.Phone)
		}
	}
	slices.Sort(phones)
	c.Phones = slices.Compact(phones)
	return nil
}

func (Contacts) Save(ctx context.Context, tx *store.Tx, c *store.Contact) error {
	return tx.UpsertContact(ctx, c)
}

func stringList(rec remote.Record, key string) []string {
	switch v := rec[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
