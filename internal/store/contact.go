package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
)

const contactColumns = `record_id, first_name, last_name, section, updated_at,
	(SELECT group_concat(user_phone, ',') FROM contact_phones WHERE contact_id = contacts.record_id)`

func scanContact(r rowScanner) (Contact, error) {
	var c Contact
	var updated int64
	var phones sql.NullString
	if err := r.Scan(&c.RecordID, &c.FirstName, &c.LastName, &c.Section, &updated, &phones); err != nil {
		return Contact{}, err
	}
	if phones.String != "" {
		c.Phones = strings.Split(phones.String, ",")
		slices.Sort(c.Phones)
	}
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

// FindContacts returns the contacts whose record id is in ids.
func (t *Tx) FindContacts(ctx context.Context, ids []string, scope Scope) ([]Contact, error) {
	return findIn(ctx, t, `SELECT `+contactColumns+` FROM contacts`, "record_id", ids, scope, scanContact)
}

// Contact returns one contact by record id.
func (t *Tx) Contact(ctx context.Context, recordID string) (Contact, error) {
	if err := t.checkRead(); err != nil {
		return Contact{}, err
	}
	c, err := scanContact(t.q.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE record_id = ?`, recordID))
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

// Contacts returns every contact ordered by section and name.
func (t *Tx) Contacts(ctx context.Context) ([]Contact, error) {
	if err := t.checkRead(); err != nil {
		return nil, err
	}
	return queryAll(ctx, t.q, `SELECT `+contactColumns+` FROM contacts ORDER BY section, first_name, last_name, record_id`, nil, scanContact)
}

// UpsertContact inserts or updates a contact and replaces its phone links.
// Every phone must belong to an existing user.
func (t *Tx) UpsertContact(ctx context.Context, c *Contact) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO contacts (record_id, first_name, last_name, section, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			section = excluded.section,
			updated_at = excluded.updated_at`,
		c.RecordID, c.FirstName, c.LastName, c.Section, toMillis(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert contact %q: %w", c.RecordID, err)
	}
	if _, err := t.q.ExecContext(ctx, `DELETE FROM contact_phones WHERE contact_id = ?`, c.RecordID); err != nil {
		return fmt.Errorf("clear contact phones %q: %w", c.RecordID, err)
	}
	phones := slices.Clone(c.Phones)
	slices.Sort(phones)
	phones = slices.Compact(phones)
	for _, p := range phones {
		if _, err := t.q.ExecContext(ctx, `INSERT INTO contact_phones (contact_id, user_phone) VALUES (?, ?)`, c.RecordID, p); err != nil {
			return fmt.Errorf("link contact %q to %q: %w", c.RecordID, p, err)
		}
	}
	stored := *c
	stored.Phones = phones
	t.rec.contacts[c.RecordID] = stored
	t.rec.upserted(KindContact, c.RecordID)
	return nil
}

// ContactLinked reports whether any contact lists the phone number.
func (t *Tx) ContactLinked(ctx context.Context, phone string) (bool, error) {
	if err := t.checkRead(); err != nil {
		return false, err
	}
	var n int
	err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM contact_phones WHERE user_phone = ?`, phone).Scan(&n)
	return n > 0, err
}
