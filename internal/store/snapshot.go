package store

import (
	"context"
	"fmt"
)

// LoadSnapshot reads the whole committed graph as a change set that, applied
// to an empty view, reproduces the store.
func (db *DB) LoadSnapshot(ctx context.Context) (*ChangeSet, error) {
	var cs *ChangeSet
	err := db.View(ctx, func(tx *Tx) error {
		var err error
		cs, err = tx.snapshot(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

func (t *Tx) snapshot(ctx context.Context) (*ChangeSet, error) {
	rec := newRecorder()

	users, err := t.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot users: %w", err)
	}
	for _, u := range users {
		rec.users[u.Phone] = u
	}

	thumbs, err := queryAll(ctx, t.q, `SELECT `+thumbnailColumns+` FROM thumbnails`, nil, scanThumbnail)
	if err != nil {
		return nil, fmt.Errorf("snapshot thumbnails: %w", err)
	}
	for _, th := range thumbs {
		rec.thumbnails[th.UserPhone] = th
	}

	contacts, err := t.Contacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot contacts: %w", err)
	}
	for _, c := range contacts {
		rec.contacts[c.RecordID] = c
	}

	videos, err := t.Videos(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot videos: %w", err)
	}
	for _, v := range videos {
		rec.videos[v.HashKey] = v
	}

	clips, err := queryAll(ctx, t.q, `SELECT `+clipColumns+` FROM clips`, nil, scanClip)
	if err != nil {
		return nil, fmt.Errorf("snapshot clips: %w", err)
	}
	for _, c := range clips {
		rec.clips[c.ID] = c
	}

	members, err := queryAll(ctx, t.q, `SELECT `+memberColumns+` FROM members`, nil, scanMember)
	if err != nil {
		return nil, fmt.Errorf("snapshot members: %w", err)
	}
	for _, m := range members {
		rec.members[m.Key()] = m
	}

	activities, err := t.Activities(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("snapshot activities: %w", err)
	}
	for _, a := range activities {
		rec.activities[a.ID] = a
	}

	return rec.changeSet("snapshot"), nil
}
