package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

type recorded struct {
	method string
	path   string
	auth   string
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/v1", staticToken("secret"), time.Second), &calls
}

func TestFetchCollectionFollowsPagination(t *testing.T) {
	var base string
	client, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{"results": [{"hash_key": "b"}], "next": null}`))
			return
		}
		_, _ = w.Write([]byte(`{"results": [{"hash_key": "a", "likes_count": 3}], "next": "` + base + `/api/v1/videos/?page=2"}`))
	})
	base = client.baseURL[:len(client.baseURL)-len("/api/v1")]

	recs, err := client.FetchCollection(context.Background(), Scope{Collection: CollectionVideos})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].String("hash_key"))
	assert.Equal(t, 3, recs[0].Int("likes_count"))
	assert.Equal(t, "b", recs[1].String("hash_key"))

	require.Len(t, *calls, 2)
	assert.Equal(t, "Token secret", (*calls)[0].auth)
	assert.Equal(t, "/api/v1/videos/", (*calls)[0].path)
}

func TestFetchCollectionBareArray(t *testing.T) {
	client, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"user": {"phone_number": "+15550000002"}}]`))
	})

	recs, err := client.FetchCollection(context.Background(), Scope{Collection: CollectionMembers, VideoKey: "abc"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "+15550000002", recs[0].Record("user").String("phone_number"))
	assert.Equal(t, "/api/v1/videos/abc/members/", (*calls)[0].path)
}

func TestFetchVideoDetail(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hash_key": "abc", "clips": [{"identifier": 7}]}`))
	})

	recs, err := client.FetchCollection(context.Background(), Scope{Collection: CollectionVideo, VideoKey: "abc"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	clips := recs[0].Records("clips")
	require.Len(t, clips, 1)
	assert.Equal(t, "7", clips[0].String("identifier"))
}

func TestFetchCollectionNeedsVideoKey(t *testing.T) {
	client, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := client.FetchCollection(context.Background(), Scope{Collection: CollectionMembers})
	require.Error(t, err)
	assert.Empty(t, *calls)
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail": "Invalid token."}`))
	})

	_, err := client.FetchCollection(context.Background(), Scope{Collection: CollectionActivities})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, errors.Is(err, ErrNotFound))

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusUnauthorized, rerr.StatusCode)
}

func TestMutateRoutes(t *testing.T) {
	tests := []struct {
		m      Mutation
		method string
		path   string
	}{
		{Mutation{Op: OpPlay, Target: "abc"}, http.MethodPost, "/api/v1/videos/abc/plays/"},
		{Mutation{Op: OpLike, Target: "abc"}, http.MethodPost, "/api/v1/videos/abc/likes/"},
		{Mutation{Op: OpUnlike, Target: "abc"}, http.MethodDelete, "/api/v1/videos/abc/likes/"},
		{Mutation{Op: OpClearNotifications, Target: "abc"}, http.MethodPost, "/api/v1/videos/abc/clear_notifications/"},
		{Mutation{Op: OpDeleteVideo, Target: "abc"}, http.MethodDelete, "/api/v1/videos/abc/"},
		{Mutation{Op: OpLeave, Target: "abc", Payload: Record{"phone": "+15550000001"}}, http.MethodDelete, "/api/v1/videos/abc/members/+15550000001/"},
		{Mutation{Op: OpDeleteClip, Target: "abc", Payload: Record{"clip": "9"}}, http.MethodDelete, "/api/v1/videos/abc/clips/9/"},
		{Mutation{Op: OpCreate, Payload: Record{"title": "hi"}}, http.MethodPost, "/api/v1/videos/"},
	}
	for _, tt := range tests {
		t.Run(string(tt.m.Op), func(t *testing.T) {
			client, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
			rec, err := client.Mutate(context.Background(), tt.m)
			require.NoError(t, err)
			assert.Nil(t, rec)
			require.Len(t, *calls, 1)
			assert.Equal(t, tt.method, (*calls)[0].method)
			assert.Equal(t, tt.path, (*calls)[0].path)
		})
	}
}

func TestMutateReturnsRecord(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"hash_key": "srv1", "title": "hi"}`))
	})
	rec, err := client.Mutate(context.Background(), Mutation{Op: OpCreate, Payload: Record{"title": "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "srv1", rec.String("hash_key"))
}

func TestMutateRejectsIncomplete(t *testing.T) {
	client, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := client.Mutate(context.Background(), Mutation{Op: OpRevokeMember, Target: "abc"})
	require.Error(t, err)
	_, err = client.Mutate(context.Background(), Mutation{Op: OpLike})
	require.Error(t, err)
	assert.Empty(t, *calls)
}

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"id":      float64(42),
		"score":   "1.5",
		"liked":   true,
		"created": "2026-03-01T10:00:00Z",
		"bad":     "yesterday",
		"nested":  map[string]any{"k": "v"},
		"list":    []any{map[string]any{"a": 1.0}, "junk"},
	}
	assert.Equal(t, "42", rec.String("id"))
	assert.Equal(t, 42, rec.Int("id"))
	assert.InDelta(t, 1.5, rec.Float("score"), 1e-9)
	assert.True(t, rec.Bool("liked"))
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), rec.Time("created"))
	assert.True(t, rec.Time("bad").IsZero())
	assert.Equal(t, "v", rec.Record("nested").String("k"))
	assert.Len(t, rec.Records("list"), 1)
	assert.False(t, rec.Has("missing"))
	assert.Equal(t, "", rec.String("missing"))
}
