// Package view holds the foreground's in-memory copy of the entity graph.
// A Graph changes only through Apply, which the pool calls on the
// foreground loop with each committed change set; readers never touch the
// database.
package view

import (
	"cmp"
	"maps"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/matheus3301/gravvy/internal/rank"
	"github.com/matheus3301/gravvy/internal/store"
)

// Change lists what one Apply did to one collection, cascades included.
type Change struct {
	Kind     store.Kind
	Upserted []string
	Deleted  []string
}

// Graph is the merged, read-mostly entity graph.
type Graph struct {
	mu         sync.RWMutex
	users      map[string]store.User
	thumbnails map[string]store.Thumbnail
	contacts   map[string]store.Contact
	videos     map[string]store.Video
	clips      map[string]store.Clip
	members    map[string]store.Member
	activities map[string]store.Activity
	version    uint64
	last       ulid.ULID
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		users:      make(map[string]store.User),
		thumbnails: make(map[string]store.Thumbnail),
		contacts:   make(map[string]store.Contact),
		videos:     make(map[string]store.Video),
		clips:      make(map[string]store.Clip),
		members:    make(map[string]store.Member),
		activities: make(map[string]store.Activity),
	}
}

// Version counts applied change sets.
func (g *Graph) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// LastApplied returns the id of the most recent change set.
func (g *Graph) LastApplied() ulid.ULID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.last
}

type changes map[store.Kind]*Change

func (c changes) upsert(k store.Kind, id string) {
	c.get(k).Upserted = append(c.get(k).Upserted, id)
}

func (c changes) remove(k store.Kind, id string) {
	c.get(k).Deleted = append(c.get(k).Deleted, id)
}

func (c changes) get(k store.Kind) *Change {
	ch, ok := c[k]
	if !ok {
		ch = &Change{Kind: k}
		c[k] = ch
	}
	return ch
}

// Apply merges a committed change set. Deletions run before upserts, and
// deleting a parent removes the children the database removed by cascade.
// The result is in dependency order.
func (g *Graph) Apply(cs *store.ChangeSet) []Change {
	if cs.Empty() {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(changes)
	order := store.KindOrder()
	for i := len(order) - 1; i >= 0; i-- {
		for _, id := range cs.Deleted[order[i]] {
			g.deleteLocked(order[i], id, out)
		}
	}

	for _, u := range cs.Users {
		g.users[u.Phone] = u
		out.upsert(store.KindUser, u.Phone)
	}
	for _, th := range cs.Thumbnails {
		g.thumbnails[th.UserPhone] = th
		out.upsert(store.KindThumbnail, th.UserPhone)
	}
	for _, c := range cs.Contacts {
		c.Phones = slices.Clone(c.Phones)
		g.contacts[c.RecordID] = c
		out.upsert(store.KindContact, c.RecordID)
	}
	for _, v := range cs.Videos {
		g.videos[v.HashKey] = v
		out.upsert(store.KindVideo, v.HashKey)
	}
	for _, c := range cs.Clips {
		g.clips[c.ID] = c
		out.upsert(store.KindClip, c.ID)
	}
	for _, m := range cs.Members {
		g.members[m.Key()] = m
		out.upsert(store.KindMember, m.Key())
	}
	for _, a := range cs.Activities {
		g.activities[a.ID] = a
		out.upsert(store.KindActivity, a.ID)
	}

	g.version++
	g.last = cs.ID

	result := make([]Change, 0, len(out))
	for _, k := range order {
		if ch, ok := out[k]; ok {
			slices.Sort(ch.Upserted)
			ch.Deleted = slices.Compact(slices.Sorted(slices.Values(ch.Deleted)))
			result = append(result, *ch)
		}
	}
	return result
}

func (g *Graph) deleteLocked(k store.Kind, id string, out changes) {
	switch k {
	case store.KindUser:
		if _, ok := g.users[id]; !ok {
			return
		}
		delete(g.users, id)
		out.remove(k, id)
		if _, ok := g.thumbnails[id]; ok {
			g.deleteLocked(store.KindThumbnail, id, out)
		}
		for key, v := range g.videos {
			if v.OwnerPhone == id {
				g.deleteLocked(store.KindVideo, key, out)
			}
		}
		for key, m := range g.members {
			if m.UserPhone == id {
				g.deleteLocked(store.KindMember, key, out)
			}
		}
		for key, a := range g.activities {
			if a.ActorPhone == id || (a.ObjectType == store.ObjectUser && a.ObjectID == id) {
				g.deleteLocked(store.KindActivity, key, out)
			}
		}
		for key, c := range g.clips {
			if c.OwnerPhone == id {
				c.OwnerPhone = ""
				g.clips[key] = c
			}
		}
		for key, c := range g.contacts {
			if i := slices.Index(c.Phones, id); i >= 0 {
				c.Phones = slices.Delete(slices.Clone(c.Phones), i, i+1)
				g.contacts[key] = c
			}
		}
	case store.KindThumbnail:
		if _, ok := g.thumbnails[id]; ok {
			delete(g.thumbnails, id)
			out.remove(k, id)
		}
	case store.KindContact:
		if _, ok := g.contacts[id]; ok {
			delete(g.contacts, id)
			out.remove(k, id)
		}
	case store.KindVideo:
		if _, ok := g.videos[id]; !ok {
			return
		}
		delete(g.videos, id)
		out.remove(k, id)
		for key, c := range g.clips {
			if c.VideoKey == id {
				g.deleteLocked(store.KindClip, key, out)
			}
		}
		for key, m := range g.members {
			if m.VideoKey == id {
				g.deleteLocked(store.KindMember, key, out)
			}
		}
		for key, a := range g.activities {
			if a.TargetVideoKey == id || (a.ObjectType == store.ObjectVideo && a.ObjectID == id) {
				g.deleteLocked(store.KindActivity, key, out)
			}
		}
	case store.KindClip:
		if _, ok := g.clips[id]; !ok {
			return
		}
		delete(g.clips, id)
		out.remove(k, id)
		for key, a := range g.activities {
			if a.ObjectType == store.ObjectClip && a.ObjectID == id {
				g.deleteLocked(store.KindActivity, key, out)
			}
		}
	case store.KindMember:
		if _, ok := g.members[id]; ok {
			delete(g.members, id)
			out.remove(k, id)
		}
	case store.KindActivity:
		if _, ok := g.activities[id]; ok {
			delete(g.activities, id)
			out.remove(k, id)
		}
	}
}

// Videos returns every video in display order.
func (g *Graph) Videos() []store.Video {
	g.mu.RLock()
	out := slices.Collect(maps.Values(g.videos))
	g.mu.RUnlock()
	slices.SortFunc(out, rank.Display)
	return out
}

// Video returns one video.
func (g *Graph) Video(hashKey string) (store.Video, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.videos[hashKey]
	return v, ok
}

// Clips returns the clips of a video by position.
func (g *Graph) Clips(hashKey string) []store.Clip {
	g.mu.RLock()
	var out []store.Clip
	for _, c := range g.clips {
		if c.VideoKey == hashKey {
			out = append(out, c)
		}
	}
	g.mu.RUnlock()
	slices.SortFunc(out, func(a, b store.Clip) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Members returns the members of a video, oldest first.
func (g *Graph) Members(hashKey string) []store.Member {
	g.mu.RLock()
	var out []store.Member
	for _, m := range g.members {
		if m.VideoKey == hashKey {
			out = append(out, m)
		}
	}
	g.mu.RUnlock()
	slices.SortFunc(out, func(a, b store.Member) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UserPhone, b.UserPhone)
	})
	return out
}

// Activities returns the feed, newest first.
func (g *Graph) Activities() []store.Activity {
	g.mu.RLock()
	out := slices.Collect(maps.Values(g.activities))
	g.mu.RUnlock()
	slices.SortFunc(out, func(a, b store.Activity) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// User returns one user.
func (g *Graph) User(phone string) (store.User, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	u, ok := g.users[phone]
	return u, ok
}

// Favorites returns favorited users ordered by name.
func (g *Graph) Favorites() []store.User {
	g.mu.RLock()
	var out []store.User
	for _, u := range g.users {
		if u.Favorited {
			out = append(out, u)
		}
	}
	g.mu.RUnlock()
	slices.SortFunc(out, func(a, b store.User) int {
		if c := cmp.Compare(a.FullName, b.FullName); c != 0 {
			return c
		}
		return cmp.Compare(a.Phone, b.Phone)
	})
	return out
}

// Thumbnail returns the avatar image of a user.
func (g *Graph) Thumbnail(phone string) (store.Thumbnail, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	th, ok := g.thumbnails[phone]
	return th, ok
}

// IsVideoOwner reports whether phone owns the video.
func (g *Graph) IsVideoOwner(hashKey, phone string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.videos[hashKey]
	return ok && phone != "" && v.OwnerPhone == phone
}

// HasPendingNotifications reports whether the video has unseen content.
func (g *Graph) HasPendingNotifications(hashKey string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.videos[hashKey]
	return ok && v.HasPendingNotifications()
}

// DisplayName returns the address-book name for phone when a contact lists
// it, else the user's server name, else the phone itself.
func (g *Graph) DisplayName(phone string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var names []string
	for _, c := range g.contacts {
		if slices.Contains(c.Phones, phone) && c.FullName() != "" {
			names = append(names, c.FullName())
		}
	}
	if len(names) > 0 {
		slices.Sort(names)
		return names[0]
	}
	if u, ok := g.users[phone]; ok && u.FullName != "" {
		return u.FullName
	}
	return phone
}
