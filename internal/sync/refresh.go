package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/gravvy/internal/addressbook"
	"github.com/matheus3301/gravvy/internal/bus"
	"github.com/matheus3301/gravvy/internal/importer"
	"github.com/matheus3301/gravvy/internal/pool"
	"github.com/matheus3301/gravvy/internal/rank"
	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/store"
)

// Collection names used in reports and checkpoints.
const (
	collectionVideos     = "videos"
	collectionVideo      = "video"
	collectionMembers    = "members"
	collectionActivities = "activities"
	collectionFavorites  = "favorites"
	collectionContacts   = "contacts"
	collectionThumbnail  = "thumbnail"
)

func users(c *pool.Context) importer.Users {
	return importer.Users{Self: c.Identity()}
}

func videos(c *pool.Context) importer.Videos {
	return importer.Videos{Users: users(c)}
}

func (e *Engine) withLogger(ctx context.Context) context.Context {
	return importer.WithLogger(ctx, e.logger)
}

// RefreshVideos imports the video list. Server videos missing from the list
// are deleted; videos created locally and not yet confirmed are kept, and
// videos with unsent local changes keep their local state. With reorder,
// the list is reranked in the same transaction.
func (e *Engine) RefreshVideos(ctx context.Context, reorder bool) error {
	return e.run(ctx, pool.Video, collectionVideos, func(ctx context.Context, c *pool.Context, rep *bus.SyncReport) error {
		recs, err := e.api.FetchCollection(ctx, remote.Scope{Collection: remote.CollectionVideos})
		if err != nil {
			return err
		}
		ctx = e.withLogger(ctx)
		t := videos(c)
		_, err = c.Update(ctx, "refresh videos", func(tx *store.Tx) error {
			pending, err := tx.PendingTargets(ctx, store.KindVideo)
			if err != nil {
				return err
			}
			var fresh []remote.Record
			keep := slices.Clone(pending)
			for _, rec := range recs {
				id, ok := t.Identity(rec)
				if !ok {
					continue
				}
				keep = append(keep, id)
				if !slices.Contains(pending, id) {
					fresh = append(fresh, rec)
				}
			}

			res, err := importer.Import(ctx, tx, t, fresh, store.All)
			if err != nil {
				return err
			}
			rep.Created, rep.Updated = res.Created, res.Updated

			deleted, err := tx.DeleteNotIn(ctx, store.KindVideo, keep, store.ServerVideos())
			if err != nil {
				return err
			}
			rep.Deleted = len(deleted)

			if reorder {
				if err := reorderVideos(ctx, tx); err != nil {
					return err
				}
			}
			return e.recon.Mark(ctx, tx, collectionVideos)
		})
		return err
	})
}

// reorderVideos persists the rank of every server video. Local videos keep
// store.OrderNew until the server confirms them.
func reorderVideos(ctx context.Context, tx *store.Tx) error {
	all, err := tx.Videos(ctx)
	if err != nil {
		return err
	}
	server := slices.DeleteFunc(all, store.Video.IsLocal)
	for _, v := range rank.Changed(server, rank.Reorder(server)) {
		if err := tx.UpsertVideo(ctx, &v); err != nil {
			return err
		}
	}
	return nil
}

// RefreshVideo imports the detail of one video with its clips. Clips the
// server no longer lists are deleted. A video the server no longer knows
// is deleted locally.
func (e *Engine) RefreshVideo(ctx context.Context, hashKey string) error {
	return e.run(ctx, pool.Video, collectionVideo, func(ctx context.Context, c *pool.Context, rep *bus.SyncReport) error {
		return e.refreshVideo(ctx, c, hashKey, rep)
	})
}

func (e *Engine) refreshVideo(ctx context.Context, c *pool.Context, hashKey string, rep *bus.SyncReport) error {
	if strings.HasPrefix(hashKey, store.LocalKeyPrefix) {
		return nil
	}
	recs, err := e.api.FetchCollection(ctx, remote.Scope{Collection: remote.CollectionVideo, VideoKey: hashKey})
	if errors.Is(err, remote.ErrNotFound) {
		_, err = c.Update(ctx, "refresh video", func(tx *store.Tx) error {
			deleted, err := tx.Delete(ctx, store.KindVideo, hashKey)
			if deleted {
				rep.Deleted++
			}
			return err
		})
		return err
	}
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("video %s: empty response", hashKey)
	}

	ctx = e.withLogger(ctx)
	rec := recs[0]
	_, err = c.Update(ctx, "refresh video", func(tx *store.Tx) error {
		v, err := importer.FindOrCreateOne(ctx, tx, videos(c), rec, store.All)
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("video %s: %w", hashKey, importer.ErrUnresolved)
		}
		rep.Updated++
		if !rec.Has(importer.FieldClips) {
			return nil
		}
		clips := importer.Clips{Video: v.HashKey, Users: users(c)}
		records := rec.Records(importer.FieldClips)
		res, err := importer.Import(ctx, tx, clips, records, clips.Scope())
		if err != nil {
			return err
		}
		rep.Created += res.Created
		rep.Updated += res.Updated
		deleted, err := importer.DeleteMissing(ctx, tx, clips, records, clips.Scope())
		rep.Deleted += len(deleted)
		return err
	})
	return err
}

// FetchVideo returns a video from the foreground graph, or fetches it from
// the server when the graph does not have it.
func (e *Engine) FetchVideo(ctx context.Context, hashKey string) (store.Video, error) {
	if v, ok := e.pool.Graph().Video(hashKey); ok {
		return v, nil
	}
	if err := e.RefreshVideo(ctx, hashKey); err != nil {
		return store.Video{}, err
	}
	var v store.Video
	err := e.pool.Run(ctx, pool.Video, func(ctx context.Context, c *pool.Context) error {
		return c.View(ctx, func(tx *store.Tx) error {
			var err error
			v, err = tx.Video(ctx, hashKey)
			return err
		})
	})
	return v, err
}

// RefreshMembers imports the members of a stored video and deletes the
// ones the server no longer lists.
func (e *Engine) RefreshMembers(ctx context.Context, hashKey string) error {
	return e.run(ctx, pool.Video, collectionMembers, func(ctx context.Context, c *pool.Context, rep *bus.SyncReport) error {
		recs, err := e.api.FetchCollection(ctx, remote.Scope{Collection: remote.CollectionMembers, VideoKey: hashKey})
		if err != nil {
			return err
		}
		ctx = e.withLogger(ctx)
		members := importer.Members{Video: hashKey, Users: users(c)}
		_, err = c.Update(ctx, "refresh members", func(tx *store.Tx) error {
			if _, err := tx.Video(ctx, hashKey); err != nil {
				return fmt.Errorf("members of %s: %w", hashKey, err)
			}
			res, err := importer.Import(ctx, tx, members, recs, members.Scope())
			if err != nil {
				return err
			}
			rep.Created, rep.Updated = res.Created, res.Updated
			deleted, err := importer.DeleteMissing(ctx, tx, members, recs, members.Scope())
			rep.Deleted = len(deleted)
			return err
		})
		return err
	})
}

// RefreshActivities imports the activity feed. The feed is append-only:
// nothing is swept.
func (e *Engine) RefreshActivities(ctx context.Context) error {
	return e.run(ctx, pool.General, collectionActivities, func(ctx context.Context, c *pool.Context, rep *bus.SyncReport) error {
		recs, err := e.api.FetchCollection(ctx, remote.Scope{Collection: remote.CollectionActivities})
		if err != nil {
			return err
		}
		ctx = e.withLogger(ctx)
		acts := importer.Activities{Users: users(c), Videos: videos(c)}
		_, err = c.Update(ctx, "refresh activities", func(tx *store.Tx) error {
			res, err := importer.Import(ctx, tx, acts, recs, store.All)
			if err != nil {
				return err
			}
			rep.Created, rep.Updated = res.Created, res.Updated
			return e.recon.Mark(ctx, tx, collectionActivities)
		})
		return err
	})
}

// RefreshFavorites imports the favorite users and clears the flag of every
// user the server no longer lists. Avatars of favorites without a stored
// thumbnail are queued for download.
func (e *Engine) RefreshFavorites(ctx context.Context) error {
	return e.run(ctx, pool.General, collectionFavorites, func(ctx context.Context, c *pool.Context, rep *bus.SyncReport) error {
		recs, err := e.api.FetchCollection(ctx, remote.Scope{Collection: remote.CollectionFavorites})
		if err != nil {
			return err
		}
		ctx = e.withLogger(ctx)
		favorites := importer.Users{Self: c.Identity(), Favorite: true}
		var missing []string
		_, err = c.Update(ctx, "refresh favorites", func(tx *store.Tx) error {
			res, err := importer.Import(ctx, tx, favorites, recs, store.All)
			if err != nil {
				return err
			}
			rep.Created, rep.Updated = res.Created, res.Updated
			keep := make([]string, 0, len(res.Entities))
			for _, u := range res.Entities {
				keep = append(keep, u.Phone)
				if u.AvatarURL == "" {
					continue
				}
				if _, err := tx.Thumbnail(ctx, u.Phone); errors.Is(err, store.ErrNotFound) {
					missing = append(missing, u.Phone)
				} else if err != nil {
					return err
				}
			}
			if err := tx.ClearFavoritesExcept(ctx, keep); err != nil {
				return err
			}
			return e.recon.Mark(ctx, tx, collectionFavorites)
		})
		if err != nil {
			return err
		}
		for _, phone := range missing {
			e.queueThumbnail(phone)
		}
		return nil
	})
}

func (e *Engine) queueThumbnail(phone string) {
	job := func(ctx context.Context, c *pool.Context) error {
		var rep bus.SyncReport
		return e.refreshThumbnail(ctx, c, phone, &rep)
	}
	err := e.pool.Perform(pool.General, job, func(err error) {
		if err != nil {
			e.logger.Debug("thumbnail download failed", zap.String("phone", phone), zap.Error(err))
		}
	})
	if err != nil {
		e.logger.Debug("thumbnail not queued", zap.String("phone", phone), zap.Error(err))
	}
}

// RefreshThumbnail downloads the avatar of a user and replaces the stored
// thumbnail. A user without an avatar is left alone.
func (e *Engine) RefreshThumbnail(ctx context.Context, phone string) error {
	return e.run(ctx, pool.General, collectionThumbnail, func(ctx context.Context, c *pool.Context, rep *bus.SyncReport) error {
		return e.refreshThumbnail(ctx, c, phone, rep)
	})
}

func (e *Engine) refreshThumbnail(ctx context.Context, c *pool.Context, phone string, rep *bus.SyncReport) error {
	var u store.User
	err := c.View(ctx, func(tx *store.Tx) error {
		var err error
		u, err = tx.User(ctx, phone)
		return err
	})
	if err != nil {
		return fmt.Errorf("user %s: %w", phone, err)
	}
	if u.AvatarURL == "" {
		return nil
	}
	img, err := e.api.FetchImage(ctx, u.AvatarURL)
	if err != nil {
		return err
	}
	_, err = c.Update(ctx, "refresh thumbnail", func(tx *store.Tx) error {
		return tx.PutThumbnail(ctx, &store.Thumbnail{
			UserPhone: phone,
			Image:     img,
			UpdatedAt: time.Now().UTC(),
		})
	})
	if err == nil {
		rep.Updated = 1
	}
	return err
}

// RefreshContacts imports the address book on the long-running worker.
// Contacts no longer in the address book are deleted.
func (e *Engine) RefreshContacts(ctx context.Context) error {
	if e.book == nil {
		return nil
	}
	return e.run(ctx, pool.LongRunning, collectionContacts, func(ctx context.Context, c *pool.Context, rep *bus.SyncReport) error {
		people, err := e.book.People(ctx)
		if err != nil {
			return err
		}
		recs := addressbook.Records(people)
		ctx = e.withLogger(ctx)
		contacts := importer.Contacts{Self: c.Identity(), Region: e.opts.Region}
		_, err = c.Update(ctx, "refresh contacts", func(tx *store.Tx) error {
			res, err := importer.Import(ctx, tx, contacts, recs, store.All)
			if err != nil {
				return err
			}
			rep.Created, rep.Updated = res.Created, res.Updated
			deleted, err := importer.DeleteMissing(ctx, tx, contacts, recs, store.All)
			if err != nil {
				return err
			}
			rep.Deleted = len(deleted)
			return e.recon.Mark(ctx, tx, collectionContacts)
		})
		return err
	})
}
