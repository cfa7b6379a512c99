// Package outbox applies local changes to videos and mirrors them to the
// server. Every action writes its local effect and its queued mutation in
// one transaction; the Sender delivers the queue in order.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/matheus3301/gravvy/internal/bus"
	"github.com/matheus3301/gravvy/internal/pool"
	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/store"
)

var (
	// ErrNotOwner is returned for actions only the video owner may take.
	ErrNotOwner = errors.New("outbox: not the video owner")
	// ErrUnconfirmed is returned for actions on a video the server has
	// not confirmed yet.
	ErrUnconfirmed = errors.New("outbox: video not confirmed by the server")
)

// Payload keys.
const (
	payloadPhone = "phone"
	payloadClip  = "clip"
	payloadTitle = "title"
)

// Actions are the user's changes to videos.
type Actions struct {
	pool *pool.Pool
	bus  *bus.Bus
	now  func() time.Time
}

// NewActions creates the actions of the pool's open store.
func NewActions(p *pool.Pool, b *bus.Bus) *Actions {
	return &Actions{pool: p, bus: b, now: time.Now}
}

// apply runs fn in one write transaction on the video worker and wakes the
// sender.
func (a *Actions) apply(ctx context.Context, source string, fn func(ctx context.Context, tx *store.Tx, self string) error) error {
	err := a.pool.Run(ctx, pool.Video, func(ctx context.Context, c *pool.Context) error {
		_, err := c.Update(ctx, source, func(tx *store.Tx) error {
			return fn(ctx, tx, c.Identity())
		})
		return err
	})
	if err != nil {
		return err
	}
	a.bus.Emit(bus.OutboxQueued, nil)
	return nil
}

func enqueue(ctx context.Context, tx *store.Tx, op remote.Op, target string, payload remote.Record) error {
	m := &store.Mutation{
		MutationID: uuid.NewString(),
		Kind:       store.KindVideo,
		Op:         string(op),
		Target:     target,
	}
	if len(payload) > 0 {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", op, err)
		}
		m.Payload = string(data)
	}
	return tx.EnqueueMutation(ctx, m)
}

// serverVideo loads a video the server knows about.
func serverVideo(ctx context.Context, tx *store.Tx, hashKey string) (store.Video, error) {
	v, err := tx.Video(ctx, hashKey)
	if err != nil {
		return store.Video{}, fmt.Errorf("video %s: %w", hashKey, err)
	}
	if v.IsLocal() {
		return store.Video{}, ErrUnconfirmed
	}
	return v, nil
}

// Play counts one play of a video.
func (a *Actions) Play(ctx context.Context, hashKey string) error {
	return a.apply(ctx, "play", func(ctx context.Context, tx *store.Tx, _ string) error {
		v, err := serverVideo(ctx, tx, hashKey)
		if err != nil {
			return err
		}
		v.PlaysCount++
		if err := tx.UpsertVideo(ctx, &v); err != nil {
			return err
		}
		return enqueue(ctx, tx, remote.OpPlay, hashKey, nil)
	})
}

// ToggleLike likes a video, or unlikes it when already liked.
func (a *Actions) ToggleLike(ctx context.Context, hashKey string) error {
	return a.apply(ctx, "toggle like", func(ctx context.Context, tx *store.Tx, _ string) error {
		v, err := serverVideo(ctx, tx, hashKey)
		if err != nil {
			return err
		}
		op := remote.OpLike
		if v.Liked {
			op = remote.OpUnlike
			v.LikesCount = max(v.LikesCount-1, 0)
		} else {
			v.LikesCount++
		}
		v.Liked = !v.Liked
		if err := tx.UpsertVideo(ctx, &v); err != nil {
			return err
		}
		return enqueue(ctx, tx, op, hashKey, nil)
	})
}

// ClearNotifications marks everything on a video as seen.
func (a *Actions) ClearNotifications(ctx context.Context, hashKey string) error {
	return a.apply(ctx, "clear notifications", func(ctx context.Context, tx *store.Tx, _ string) error {
		v, err := serverVideo(ctx, tx, hashKey)
		if err != nil {
			return err
		}
		v.UnseenClipsCount, v.UnseenLikesCount = 0, 0
		v.Participation = store.ParticipationSeen
		if err := tx.UpsertVideo(ctx, &v); err != nil {
			return err
		}
		return enqueue(ctx, tx, remote.OpClearNotifications, hashKey, nil)
	})
}

// Leave removes the signed-in user from a video. The owner leaving
// deletes the video.
func (a *Actions) Leave(ctx context.Context, hashKey string) error {
	return a.apply(ctx, "leave", func(ctx context.Context, tx *store.Tx, self string) error {
		v, err := serverVideo(ctx, tx, hashKey)
		if err != nil {
			return err
		}
		if _, err := tx.Delete(ctx, store.KindVideo, hashKey); err != nil {
			return err
		}
		if v.OwnerPhone == self {
			return enqueue(ctx, tx, remote.OpDeleteVideo, hashKey, nil)
		}
		return enqueue(ctx, tx, remote.OpLeave, hashKey, remote.Record{payloadPhone: self})
	})
}

// RevokeMember removes another user from a video the signed-in user owns.
func (a *Actions) RevokeMember(ctx context.Context, hashKey, phone string) error {
	return a.apply(ctx, "revoke member", func(ctx context.Context, tx *store.Tx, self string) error {
		v, err := serverVideo(ctx, tx, hashKey)
		if err != nil {
			return err
		}
		if v.OwnerPhone != self {
			return ErrNotOwner
		}
		if _, err := tx.Delete(ctx, store.KindMember, store.MemberKey(hashKey, phone)); err != nil {
			return err
		}
		return enqueue(ctx, tx, remote.OpRevokeMember, hashKey, remote.Record{payloadPhone: phone})
	})
}

// DeleteClips deletes clips of a video. The video owner may delete any
// clip; other members only their own. Unknown clips are ignored.
func (a *Actions) DeleteClips(ctx context.Context, hashKey string, clipIDs []string) error {
	return a.apply(ctx, "delete clips", func(ctx context.Context, tx *store.Tx, self string) error {
		v, err := serverVideo(ctx, tx, hashKey)
		if err != nil {
			return err
		}
		clips, err := tx.FindClips(ctx, clipIDs, store.InVideo(hashKey))
		if err != nil {
			return err
		}
		for _, c := range clips {
			if v.OwnerPhone != self && c.OwnerPhone != self {
				return fmt.Errorf("clip %s: %w", c.ID, ErrNotOwner)
			}
			if _, err := tx.Delete(ctx, store.KindClip, c.ID); err != nil {
				return err
			}
			if err := enqueue(ctx, tx, remote.OpDeleteClip, hashKey, remote.Record{payloadClip: c.ID}); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateVideo creates a video owned by the signed-in user and returns its
// local hash key. The video sorts first until the next reorder pass; the
// server record replaces it once the creation is acknowledged.
func (a *Actions) CreateVideo(ctx context.Context, title string) (string, error) {
	key := store.LocalKeyPrefix + uuid.NewString()
	err := a.apply(ctx, "create video", func(ctx context.Context, tx *store.Tx, self string) error {
		if _, err := tx.User(ctx, self); errors.Is(err, store.ErrNotFound) {
			if err := tx.UpsertUser(ctx, &store.User{Phone: self, Relationship: store.RelationshipSelf}); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		now := a.now().UTC()
		v := &store.Video{
			HashKey:    key,
			Title:      title,
			OwnerPhone: self,
			Membership: store.MembershipCreated,
			Order:      store.OrderNew,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.UpsertVideo(ctx, v); err != nil {
			return err
		}
		return enqueue(ctx, tx, remote.OpCreate, key, remote.Record{payloadTitle: title})
	})
	if err != nil {
		return "", err
	}
	return key, nil
}
