package store

import (
	"context"
	"database/sql"
	"fmt"
)

const activityColumns = `id, verb, actor_phone, object_type, object_user_phone, object_video_key,
	object_clip_id, target_video_key, created_at`

func scanActivity(r rowScanner) (Activity, error) {
	var a Activity
	var objUser, objVideo, objClip, target sql.NullString
	var created int64
	if err := r.Scan(&a.ID, &a.Verb, &a.ActorPhone, &a.ObjectType, &objUser, &objVideo, &objClip, &target, &created); err != nil {
		return Activity{}, err
	}
	switch a.ObjectType {
	case ObjectUser:
		a.ObjectID = objUser.String
	case ObjectVideo:
		a.ObjectID = objVideo.String
	case ObjectClip:
		a.ObjectID = objClip.String
	}
	a.TargetVideoKey = target.String
	a.CreatedAt = fromMillis(created)
	return a, nil
}

// FindActivities returns the activities whose identifier is in ids.
func (t *Tx) FindActivities(ctx context.Context, ids []string, scope Scope) ([]Activity, error) {
	return findIn(ctx, t, `SELECT `+activityColumns+` FROM activities`, "id", ids, scope, scanActivity)
}

// Activities returns the most recent activities, newest first.
func (t *Tx) Activities(ctx context.Context, limit int) ([]Activity, error) {
	if err := t.checkRead(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	return queryAll(ctx, t.q, `SELECT `+activityColumns+` FROM activities ORDER BY created_at DESC, id DESC LIMIT ?`,
		[]any{limit}, scanActivity)
}

// UpsertActivity stores an activity. Every entity it references must exist.
func (t *Tx) UpsertActivity(ctx context.Context, a *Activity) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	var objUser, objVideo, objClip sql.NullString
	switch a.ObjectType {
	case ObjectUser:
		objUser = nullString(a.ObjectID)
	case ObjectVideo:
		objVideo = nullString(a.ObjectID)
	case ObjectClip:
		objClip = nullString(a.ObjectID)
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO activities (id, verb, actor_phone, object_type, object_user_phone, object_video_key,
			object_clip_id, target_video_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			verb = excluded.verb,
			actor_phone = excluded.actor_phone,
			object_type = excluded.object_type,
			object_user_phone = excluded.object_user_phone,
			object_video_key = excluded.object_video_key,
			object_clip_id = excluded.object_clip_id,
			target_video_key = excluded.target_video_key,
			created_at = excluded.created_at`,
		a.ID, a.Verb, a.ActorPhone, a.ObjectType, objUser, objVideo, objClip,
		nullString(a.TargetVideoKey), toMillis(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert activity %q: %w", a.ID, err)
	}
	t.rec.activities[a.ID] = *a
	t.rec.upserted(KindActivity, a.ID)
	return nil
}
