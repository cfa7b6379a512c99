package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const userColumns = `phone, full_name, avatar_url, relationship, favorited, updated_at`

func scanUser(r rowScanner) (User, error) {
	var u User
	var updated int64
	if err := r.Scan(&u.Phone, &u.FullName, &u.AvatarURL, &u.Relationship, &u.Favorited, &updated); err != nil {
		return User{}, err
	}
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}

// FindUsers returns the users whose phone is in phones.
func (t *Tx) FindUsers(ctx context.Context, phones []string, scope Scope) ([]User, error) {
	return findIn(ctx, t, `SELECT `+userColumns+` FROM users`, "phone", phones, scope, scanUser)
}

// User returns one user by phone number.
func (t *Tx) User(ctx context.Context, phone string) (User, error) {
	if err := t.checkRead(); err != nil {
		return User{}, err
	}
	u, err := scanUser(t.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE phone = ?`, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// Users returns every user ordered by phone.
func (t *Tx) Users(ctx context.Context) ([]User, error) {
	if err := t.checkRead(); err != nil {
		return nil, err
	}
	return queryAll(ctx, t.q, `SELECT `+userColumns+` FROM users ORDER BY phone`, nil, scanUser)
}

// UpsertUser inserts or updates a user.
func (t *Tx) UpsertUser(ctx context.Context, u *User) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO users (phone, full_name, avatar_url, relationship, favorited, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			full_name = excluded.full_name,
			avatar_url = excluded.avatar_url,
			relationship = excluded.relationship,
			favorited = excluded.favorited,
			updated_at = excluded.updated_at`,
		u.Phone, u.FullName, u.AvatarURL, u.Relationship, u.Favorited, toMillis(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert user %q: %w", u.Phone, err)
	}
	t.rec.users[u.Phone] = *u
	t.rec.upserted(KindUser, u.Phone)
	return nil
}

// ClearFavoritesExcept unsets the favorited flag of every user not in keep.
func (t *Tx) ClearFavoritesExcept(ctx context.Context, keep []string) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	list, err := idList(keep)
	if err != nil {
		return err
	}
	cleared, err := queryAll(ctx, t.q, `
		UPDATE users SET favorited = 0
		WHERE favorited = 1 AND phone NOT IN (SELECT value FROM json_each(?))
		RETURNING `+userColumns, []any{list}, scanUser)
	if err != nil {
		return fmt.Errorf("clear favorites: %w", err)
	}
	for _, u := range cleared {
		t.rec.users[u.Phone] = u
		t.rec.upserted(KindUser, u.Phone)
	}
	return nil
}
