package view

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/gravvy/internal/store"
)

const (
	alice = "+15550000001"
	bob   = "+15550000002"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *Graph {
	t.Helper()
	g := New()
	g.Apply(&store.ChangeSet{
		ID:         ulid.Make(),
		Users:      []store.User{{Phone: alice, FullName: "Alice"}, {Phone: bob, FullName: "Bob", Favorited: true}},
		Thumbnails: []store.Thumbnail{{UserPhone: bob, Image: []byte{1}}},
		Videos: []store.Video{
			{HashKey: "v1", OwnerPhone: alice, Order: 1},
			{HashKey: "v2", OwnerPhone: bob, Order: 0, UnseenClipsCount: 2},
		},
		Clips: []store.Clip{
			{ID: "c2", VideoKey: "v1", Order: 1},
			{ID: "c1", VideoKey: "v1", Order: 0},
			{ID: "c3", VideoKey: "v2", Order: 0},
		},
		Members: []store.Member{
			{VideoKey: "v1", UserPhone: alice, CreatedAt: t0},
			{VideoKey: "v1", UserPhone: bob, CreatedAt: t0.Add(time.Minute)},
		},
		Activities: []store.Activity{
			{ID: "a1", ActorPhone: bob, ObjectType: store.ObjectVideo, ObjectID: "v1", CreatedAt: t0},
			{ID: "a2", ActorPhone: bob, ObjectType: store.ObjectClip, ObjectID: "c3", TargetVideoKey: "v2", CreatedAt: t0.Add(time.Hour)},
			{ID: "a3", ActorPhone: alice, ObjectType: store.ObjectUser, ObjectID: bob, CreatedAt: t0.Add(2 * time.Hour)},
		},
	})
	return g
}

func TestApplyEmptyIsNoop(t *testing.T) {
	g := New()
	assert.Nil(t, g.Apply(&store.ChangeSet{}))
	assert.Nil(t, g.Apply(nil))
	assert.Zero(t, g.Version())
}

func TestReaders(t *testing.T) {
	g := seeded(t)

	videos := g.Videos()
	require.Len(t, videos, 2)
	assert.Equal(t, "v2", videos[0].HashKey)

	clips := g.Clips("v1")
	require.Len(t, clips, 2)
	assert.Equal(t, []string{"c1", "c2"}, []string{clips[0].ID, clips[1].ID})

	members := g.Members("v1")
	require.Len(t, members, 2)
	assert.Equal(t, alice, members[0].UserPhone)

	acts := g.Activities()
	require.Len(t, acts, 3)
	assert.Equal(t, "a3", acts[0].ID)

	favs := g.Favorites()
	require.Len(t, favs, 1)
	assert.Equal(t, bob, favs[0].Phone)

	assert.True(t, g.IsVideoOwner("v1", alice))
	assert.False(t, g.IsVideoOwner("v1", bob))
	assert.False(t, g.IsVideoOwner("missing", alice))
	assert.True(t, g.HasPendingNotifications("v2"))
	assert.False(t, g.HasPendingNotifications("v1"))

	_, ok := g.Thumbnail(bob)
	assert.True(t, ok)
}

func TestApplyReportsChanges(t *testing.T) {
	g := seeded(t)
	id := ulid.Make()
	changes := g.Apply(&store.ChangeSet{
		ID:     id,
		Videos: []store.Video{{HashKey: "v1", OwnerPhone: alice, Title: "renamed"}},
	})
	require.Len(t, changes, 1)
	assert.Equal(t, store.KindVideo, changes[0].Kind)
	assert.Equal(t, []string{"v1"}, changes[0].Upserted)
	assert.Equal(t, uint64(2), g.Version())
	assert.Equal(t, id, g.LastApplied())

	v, _ := g.Video("v1")
	assert.Equal(t, "renamed", v.Title)
}

func TestDeleteVideoCascades(t *testing.T) {
	g := seeded(t)
	changes := g.Apply(&store.ChangeSet{
		ID:      ulid.Make(),
		Deleted: map[store.Kind][]string{store.KindVideo: {"v1"}},
	})

	_, ok := g.Video("v1")
	assert.False(t, ok)
	assert.Empty(t, g.Clips("v1"))
	assert.Empty(t, g.Members("v1"))
	assert.Len(t, g.Clips("v2"), 1, "other video untouched")

	ids := map[store.Kind][]string{}
	for _, c := range changes {
		ids[c.Kind] = c.Deleted
	}
	assert.Equal(t, []string{"v1"}, ids[store.KindVideo])
	assert.Equal(t, []string{"c1", "c2"}, ids[store.KindClip])
	assert.Equal(t, []string{store.MemberKey("v1", alice), store.MemberKey("v1", bob)}, ids[store.KindMember])
	assert.Equal(t, []string{"a1"}, ids[store.KindActivity])
}

func TestDeleteClipRemovesItsActivities(t *testing.T) {
	g := seeded(t)
	g.Apply(&store.ChangeSet{
		ID:      ulid.Make(),
		Deleted: map[store.Kind][]string{store.KindClip: {"c3"}},
	})
	for _, a := range g.Activities() {
		assert.NotEqual(t, "a2", a.ID)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	g := seeded(t)
	g.Apply(&store.ChangeSet{
		ID:       ulid.Make(),
		Contacts: []store.Contact{{RecordID: "r1", FirstName: "Bobby", Section: "B", Phones: []string{bob}}},
	})
	g.Apply(&store.ChangeSet{
		ID:      ulid.Make(),
		Deleted: map[store.Kind][]string{store.KindUser: {bob}},
	})

	_, ok := g.User(bob)
	assert.False(t, ok)
	_, ok = g.Thumbnail(bob)
	assert.False(t, ok)
	_, ok = g.Video("v2")
	assert.False(t, ok, "owned video removed")
	assert.Len(t, g.Members("v1"), 1)
	assert.Empty(t, g.Activities(), "every activity involved bob")

	contacts := g.Contacts()
	require.Len(t, contacts, 1)
	assert.Empty(t, contacts[0].Phones)
}

func TestDeleteThenUpsertInOneChangeSet(t *testing.T) {
	g := seeded(t)
	g.Apply(&store.ChangeSet{
		ID:      ulid.Make(),
		Clips:   []store.Clip{{ID: "c9", VideoKey: "v2"}},
		Deleted: map[store.Kind][]string{store.KindClip: {"c3"}},
	})
	clips := g.Clips("v2")
	require.Len(t, clips, 1)
	assert.Equal(t, "c9", clips[0].ID)
}

func TestDisplayName(t *testing.T) {
	g := seeded(t)
	assert.Equal(t, "Bob", g.DisplayName(bob))
	assert.Equal(t, "+15559999999", g.DisplayName("+15559999999"))

	g.Apply(&store.ChangeSet{
		ID:       ulid.Make(),
		Contacts: []store.Contact{{RecordID: "r1", FirstName: "Robert", LastName: "Smith", Section: "R", Phones: []string{bob}}},
	})
	assert.Equal(t, "Robert Smith", g.DisplayName(bob))
}
