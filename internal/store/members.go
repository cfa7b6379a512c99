package store

import (
	"context"
	"fmt"
)

const memberColumns = `video_key, user_phone, status, created_at, updated_at`

func scanMember(r rowScanner) (Member, error) {
	var m Member
	var created, updated int64
	if err := r.Scan(&m.VideoKey, &m.UserPhone, &m.Status, &created, &updated); err != nil {
		return Member{}, err
	}
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
	return m, nil
}

// FindMembers returns the members whose key (see MemberKey) is in keys.
func (t *Tx) FindMembers(ctx context.Context, keys []string, scope Scope) ([]Member, error) {
	return findIn(ctx, t, `SELECT `+memberColumns+` FROM members`, "member_key", keys, scope, scanMember)
}

// Members returns the members of a video ordered by phone.
func (t *Tx) Members(ctx context.Context, videoKey string) ([]Member, error) {
	if err := t.checkRead(); err != nil {
		return nil, err
	}
	return queryAll(ctx, t.q, `SELECT `+memberColumns+` FROM members WHERE video_key = ? ORDER BY user_phone`,
		[]any{videoKey}, scanMember)
}

// UpsertMember inserts or updates a member. Video and user must exist.
func (t *Tx) UpsertMember(ctx context.Context, m *Member) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	key := m.Key()
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO members (member_key, video_key, user_phone, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_key) DO UPDATE SET
			status = excluded.status,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		key, m.VideoKey, m.UserPhone, m.Status, toMillis(m.CreatedAt), toMillis(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert member %q: %w", key, err)
	}
	t.rec.members[key] = *m
	t.rec.upserted(KindMember, key)
	return nil
}
