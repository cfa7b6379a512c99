package importer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/store"
)

const (
	self  = "+15550000001"
	other = "+15550000002"
)

var ctx = context.Background()

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "gravvy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Migrate()
	require.NoError(t, err)
	return db
}

func update(t *testing.T, db *store.DB, fn func(tx *store.Tx) error) *store.ChangeSet {
	t.Helper()
	cs, err := db.Update(ctx, "test", fn)
	require.NoError(t, err)
	return cs
}

func videoRec(key, title string) remote.Record {
	return remote.Record{
		FieldHashKey: key,
		FieldTitle:   title,
		FieldOwner:   map[string]any{FieldPhoneNumber: other, FieldFullName: "Owner"},
	}
}

func videos() Videos {
	return Videos{Users: Users{Self: self}}
}

func allVideos(t *testing.T, db *store.DB) []store.Video {
	t.Helper()
	var out []store.Video
	require.NoError(t, db.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.Videos(ctx)
		return err
	}))
	return out
}

func TestImportIsIdempotent(t *testing.T) {
	db := testDB(t)
	batch := []remote.Record{videoRec("v1", "one"), videoRec("v2", "two"), videoRec("v3", "three")}

	var first, second Result[store.Video]
	update(t, db, func(tx *store.Tx) error {
		var err error
		first, err = Import(ctx, tx, videos(), batch, store.All)
		return err
	})
	update(t, db, func(tx *store.Tx) error {
		var err error
		second, err = Import(ctx, tx, videos(), batch, store.All)
		return err
	})

	assert.Equal(t, 3, first.Created)
	assert.Zero(t, second.Created)
	assert.Equal(t, 3, second.Updated)
	assert.Len(t, allVideos(t, db), 3)
}

func TestDuplicateIdentityLastWriteWins(t *testing.T) {
	db := testDB(t)
	var got []*store.Video
	update(t, db, func(tx *store.Tx) error {
		var err error
		got, err = FindOrCreate(ctx, tx, videos(), []remote.Record{
			videoRec("v1", "first"),
			videoRec("v2", "other"),
			videoRec("v1", "last"),
		}, store.All)
		return err
	})

	require.Len(t, got, 2)
	assert.Equal(t, "v1", got[0].HashKey, "input order of first appearance")
	assert.Equal(t, "last", got[0].Title)
	assert.Len(t, allVideos(t, db), 2)
}

func TestScenarioLaterBatchWins(t *testing.T) {
	db := testDB(t)
	users := Users{Self: self}
	update(t, db, func(tx *store.Tx) error {
		_, err := FindOrCreate(ctx, tx, users, []remote.Record{
			{FieldPhoneNumber: other, FieldFullName: "A", FieldUpdatedAt: "2026-01-01T00:00:00Z"},
		}, store.All)
		return err
	})
	update(t, db, func(tx *store.Tx) error {
		_, err := FindOrCreate(ctx, tx, users, []remote.Record{
			{FieldPhoneNumber: other, FieldFullName: "B", FieldUpdatedAt: "2026-01-02T00:00:00Z"},
		}, store.All)
		return err
	})

	require.NoError(t, db.View(ctx, func(tx *store.Tx) error {
		all, err := tx.Users(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "B", all[0].FullName)
		assert.Equal(t, 2, all[0].UpdatedAt.Day())
		return nil
	}))
}

func TestSkipsUnusableRecords(t *testing.T) {
	db := testDB(t)
	var res Result[store.Video]
	update(t, db, func(tx *store.Tx) error {
		var err error
		res, err = Import(ctx, tx, videos(), []remote.Record{
			{FieldTitle: "no identity"},
			{FieldHashKey: "orphan", FieldTitle: "no owner"},
			videoRec("ok", "fine"),
		}, store.All)
		return err
	})
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "ok", res.Entities[0].HashKey)
}

func TestNewVideoGetsSentinelAndUpdateKeepsOrder(t *testing.T) {
	db := testDB(t)
	update(t, db, func(tx *store.Tx) error {
		_, err := FindOrCreate(ctx, tx, videos(), []remote.Record{videoRec("v1", "t")}, store.All)
		return err
	})
	assert.Equal(t, store.OrderNew, allVideos(t, db)[0].Order)

	update(t, db, func(tx *store.Tx) error {
		v, err := tx.Video(ctx, "v1")
		if err != nil {
			return err
		}
		v.Order = 3
		return tx.UpsertVideo(ctx, &v)
	})
	update(t, db, func(tx *store.Tx) error {
		_, err := FindOrCreate(ctx, tx, videos(), []remote.Record{videoRec("v1", "renamed")}, store.All)
		return err
	})
	v := allVideos(t, db)[0]
	assert.Equal(t, int64(3), v.Order)
	assert.Equal(t, "renamed", v.Title)
}

func TestPartialRecordKeepsFields(t *testing.T) {
	db := testDB(t)
	update(t, db, func(tx *store.Tx) error {
		_, err := FindOrCreate(ctx, tx, Users{}, []remote.Record{{FieldPhoneNumber: other, FieldFullName: "Full"}}, store.All)
		return err
	})
	update(t, db, func(tx *store.Tx) error {
		_, err := FindOrCreate(ctx, tx, videos(), []remote.Record{videoRec("v1", "t")}, store.All)
		return err
	})
	update(t, db, func(tx *store.Tx) error {
		_, err := FindOrCreate(ctx, tx, videos(), []remote.Record{{FieldHashKey: "v1", FieldLikesCount: 4}}, store.All)
		return err
	})

	require.NoError(t, db.View(ctx, func(tx *store.Tx) error {
		u, err := tx.User(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, "Owner", u.FullName)
		v, err := tx.Video(ctx, "v1")
		require.NoError(t, err)
		assert.Equal(t, "t", v.Title)
		assert.Equal(t, 4, v.LikesCount)
		assert.Equal(t, other, v.OwnerPhone)
		return nil
	}))
}

func TestRelationship(t *testing.T) {
	db := testDB(t)
	update(t, db, func(tx *store.Tx) error {
		_, err := FindOrCreate(ctx, tx, Users{Self: self}, []remote.Record{
			{FieldPhoneNumber: self},
			{FieldPhoneNumber: other},
		}, store.All)
		return err
	})
	update(t, db, func(tx *store.Tx) error {
		_, err := FindOrCreate(ctx, tx, Contacts{Self: self, Region: "US"}, []remote.Record{
			{FieldRecordID: "r1", FieldFirstName: "Pat", FieldPhones: []any{other}},
		}, store.All)
		return err
	})
	// A later import without contact knowledge must not downgrade.
	update(t, db, func(tx *store.Tx) error {
		_, err := FindOrCreate(ctx, tx, Users{}, []remote.Record{{FieldPhoneNumber: self}, {FieldPhoneNumber: other}}, store.All)
		return err
	})

	require.NoError(t, db.View(ctx, func(tx *store.Tx) error {
		u, err := tx.User(ctx, self)
		require.NoError(t, err)
		assert.Equal(t, store.RelationshipSelf, u.Relationship)
		u, err = tx.User(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, store.RelationshipContact, u.Relationship)
		return nil
	}))
}

func TestDeleteMissingRespectsScope(t *testing.T) {
	db := testDB(t)
	clipsOf := func(video string) Clips { return Clips{Video: video, Users: Users{Self: self}} }
	clipRecs := func(ids ...string) []remote.Record {
		out := make([]remote.Record, len(ids))
		for i, id := range ids {
			out[i] = remote.Record{FieldIdentifier: id, FieldOrder: float64(i)}
		}
		return out
	}

	update(t, db, func(tx *store.Tx) error {
		if _, err := FindOrCreate(ctx, tx, videos(), []remote.Record{videoRec("va", ""), videoRec("vb", "")}, store.All); err != nil {
			return err
		}
		if _, err := FindOrCreate(ctx, tx, clipsOf("va"), clipRecs("1", "2", "3"), clipsOf("va").Scope()); err != nil {
			return err
		}
		_, err := FindOrCreate(ctx, tx, clipsOf("vb"), clipRecs("9"), clipsOf("vb").Scope())
		return err
	})

	fresh := clipRecs("1", "3")
	var deleted []string
	cs := update(t, db, func(tx *store.Tx) error {
		if _, err := FindOrCreate(ctx, tx, clipsOf("va"), fresh, clipsOf("va").Scope()); err != nil {
			return err
		}
		var err error
		deleted, err = DeleteMissing(ctx, tx, clipsOf("va"), fresh, clipsOf("va").Scope())
		return err
	})

	assert.Equal(t, []string{"2"}, deleted)
	assert.Equal(t, []string{"2"}, cs.Deleted[store.KindClip])
	require.NoError(t, db.View(ctx, func(tx *store.Tx) error {
		va, err := tx.Clips(ctx, "va")
		require.NoError(t, err)
		assert.Len(t, va, 2)
		vb, err := tx.Clips(ctx, "vb")
		require.NoError(t, err)
		assert.Len(t, vb, 1, "clips outside the scope are untouched")
		return nil
	}))
}

func TestMembersImport(t *testing.T) {
	db := testDB(t)
	members := Members{Video: "v1", Users: Users{Self: self}}
	var got []*store.Member
	update(t, db, func(tx *store.Tx) error {
		if _, err := FindOrCreate(ctx, tx, videos(), []remote.Record{videoRec("v1", "")}, store.All); err != nil {
			return err
		}
		var err error
		got, err = FindOrCreate(ctx, tx, members, []remote.Record{
			{FieldUser: map[string]any{FieldPhoneNumber: self}, FieldStatus: float64(store.MemberActive)},
			{FieldUser: map[string]any{FieldFullName: "no phone"}},
		}, members.Scope())
		return err
	})
	require.Len(t, got, 1)
	assert.Equal(t, store.MemberKey("v1", self), got[0].Key())
	assert.Equal(t, store.MemberActive, got[0].Status)
}

func TestActivitiesResolveObjects(t *testing.T) {
	db := testDB(t)
	acts := Activities{Users: Users{Self: self}, Videos: videos()}
	var res Result[store.Activity]
	update(t, db, func(tx *store.Tx) error {
		var err error
		res, err = Import(ctx, tx, acts, []remote.Record{
			{
				FieldIdentifier: "a1", FieldVerb: "liked",
				FieldActor:      map[string]any{FieldPhoneNumber: other},
				FieldObjectType: "video",
				FieldObject:     map[string]any(videoRec("v1", "liked video")),
			},
			{
				FieldIdentifier: "a2", FieldVerb: "added clip",
				FieldActor:      map[string]any{FieldPhoneNumber: other},
				FieldObjectType: "clip",
				FieldObject:     map[string]any{FieldIdentifier: "c1", FieldVideo: "v1"},
				FieldTarget:     map[string]any(videoRec("v1", "liked video")),
			},
			{
				FieldIdentifier: "a3", FieldVerb: "added clip",
				FieldActor:      map[string]any{FieldPhoneNumber: other},
				FieldObjectType: "clip",
				FieldObject:     map[string]any{FieldIdentifier: "c2", FieldVideo: "unknown"},
			},
			{FieldIdentifier: "a4", FieldVerb: "no actor"},
		}, store.All)
		return err
	})

	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, store.ObjectVideo, res.Entities[0].ObjectType)
	assert.Equal(t, "v1", res.Entities[0].ObjectID)
	assert.Equal(t, store.ObjectClip, res.Entities[1].ObjectType)
	assert.Equal(t, "c1", res.Entities[1].ObjectID)
	assert.Equal(t, "v1", res.Entities[1].TargetVideoKey)
}

func TestOrphanChildrenAreSkipped(t *testing.T) {
	db := testDB(t)
	clips := Clips{Video: "missing", Users: Users{Self: self}}
	members := Members{Video: "missing", Users: Users{Self: self}}

	var clipRes Result[store.Clip]
	var memberRes Result[store.Member]
	cs := update(t, db, func(tx *store.Tx) error {
		var err error
		clipRes, err = Import(ctx, tx, clips, []remote.Record{{FieldIdentifier: "c1"}}, clips.Scope())
		if err != nil {
			return err
		}
		memberRes, err = Import(ctx, tx, members, []remote.Record{
			{FieldUser: map[string]any{FieldPhoneNumber: other}},
		}, members.Scope())
		return err
	})

	assert.Equal(t, 1, clipRes.Skipped)
	assert.Empty(t, clipRes.Entities)
	assert.Equal(t, 1, memberRes.Skipped)
	assert.Empty(t, memberRes.Entities)
	assert.Empty(t, cs.Clips)
	assert.Empty(t, cs.Members)
}

func TestClipMovedToAnotherVideoKeepsFields(t *testing.T) {
	db := testDB(t)
	clipsOf := func(video string) Clips { return Clips{Video: video, Users: Users{Self: self}} }

	update(t, db, func(tx *store.Tx) error {
		if _, err := FindOrCreate(ctx, tx, videos(), []remote.Record{videoRec("va", ""), videoRec("vb", "")}, store.All); err != nil {
			return err
		}
		_, err := FindOrCreate(ctx, tx, clipsOf("va"), []remote.Record{{
			FieldIdentifier: "c1",
			FieldOwner:      map[string]any{FieldPhoneNumber: other},
			FieldDuration:   4.5,
			FieldMP4:        "https://cdn.example/c1.mp4",
		}}, clipsOf("va").Scope())
		return err
	})

	var res Result[store.Clip]
	update(t, db, func(tx *store.Tx) error {
		var err error
		res, err = Import(ctx, tx, clipsOf("vb"), []remote.Record{{FieldIdentifier: "c1", FieldOrder: float64(2)}}, clipsOf("vb").Scope())
		return err
	})
	assert.Zero(t, res.Created)
	assert.Equal(t, 1, res.Updated)

	require.NoError(t, db.View(ctx, func(tx *store.Tx) error {
		va, err := tx.Clips(ctx, "va")
		require.NoError(t, err)
		assert.Empty(t, va)
		vb, err := tx.Clips(ctx, "vb")
		require.NoError(t, err)
		require.Len(t, vb, 1)
		assert.Equal(t, other, vb[0].OwnerPhone)
		assert.Equal(t, 4.5, vb[0].Duration)
		assert.Equal(t, "https://cdn.example/c1.mp4", vb[0].MP4URL)
		assert.Equal(t, 2, vb[0].Order)
		return nil
	}))
}
