package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matheus3301/gravvy/internal/bus"
	"github.com/matheus3301/gravvy/internal/pool"
	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/session"
	"github.com/matheus3301/gravvy/internal/status"
	"github.com/matheus3301/gravvy/internal/store"
)

const (
	alice = "+15550000001"
	bob   = "+15550000002"
)

// fakeAPI records mutations and answers with canned results per op.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []remote.Mutation
	results map[remote.Op]remote.Record
	errs    map[remote.Op]error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{results: make(map[remote.Op]remote.Record), errs: make(map[remote.Op]error)}
}

func (f *fakeAPI) setErr(op remote.Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = err
}

func (f *fakeAPI) ops() []remote.Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.Op, len(f.calls))
	for i, m := range f.calls {
		out[i] = m.Op
	}
	return out
}

func (f *fakeAPI) FetchCollection(context.Context, remote.Scope) ([]remote.Record, error) {
	return nil, nil
}

func (f *fakeAPI) Mutate(_ context.Context, m remote.Mutation) (remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, m)
	if err := f.errs[m.Op]; err != nil {
		return nil, err
	}
	return f.results[m.Op], nil
}

func (f *fakeAPI) FetchImage(context.Context, string) ([]byte, error) {
	return nil, errors.New("no images")
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeRefresher) RefreshVideo(_ context.Context, hashKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, hashKey)
	return nil
}

func httpError(status int) error {
	return &remote.Error{Op: "mutate", StatusCode: status, Err: errors.New("rejected")}
}

type fixture struct {
	pool      *pool.Pool
	bus       *bus.Bus
	api       *fakeAPI
	refresher *fakeRefresher
	actions   *Actions
	sender    *Sender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := bus.New()
	p := pool.New(pool.Config{Layout: session.Layout{Root: t.TempDir()}}, b, status.NewMachine(b), zap.NewNop())
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	require.NoError(t, p.Open(context.Background(), alice))

	api := newFakeAPI()
	ref := &fakeRefresher{}
	f := &fixture{
		pool:      p,
		bus:       b,
		api:       api,
		refresher: ref,
		actions:   NewActions(p, b),
		sender:    NewSender(p, api, ref, b, zap.NewNop()),
	}
	f.update(t, func(ctx context.Context, tx *store.Tx) error {
		for _, phone := range []string{alice, bob} {
			if err := tx.UpsertUser(ctx, &store.User{Phone: phone}); err != nil {
				return err
			}
		}
		if err := tx.UpsertVideo(ctx, &store.Video{HashKey: "mine", OwnerPhone: alice, LikesCount: 2}); err != nil {
			return err
		}
		if err := tx.UpsertVideo(ctx, &store.Video{HashKey: "theirs", OwnerPhone: bob, UnseenClipsCount: 3, Participation: store.ParticipationNew}); err != nil {
			return err
		}
		return tx.UpsertMember(ctx, &store.Member{VideoKey: "mine", UserPhone: bob})
	})
	return f
}

func (f *fixture) update(t *testing.T, fn func(ctx context.Context, tx *store.Tx) error) {
	t.Helper()
	err := f.pool.Run(context.Background(), pool.General, func(ctx context.Context, c *pool.Context) error {
		_, err := c.Update(ctx, "test", func(tx *store.Tx) error { return fn(ctx, tx) })
		return err
	})
	require.NoError(t, err)
}

func (f *fixture) view(t *testing.T, fn func(ctx context.Context, tx *store.Tx) error) {
	t.Helper()
	err := f.pool.Run(context.Background(), pool.General, func(ctx context.Context, c *pool.Context) error {
		return c.View(ctx, func(tx *store.Tx) error { return fn(ctx, tx) })
	})
	require.NoError(t, err)
}

func (f *fixture) video(t *testing.T, key string) (store.Video, error) {
	t.Helper()
	var v store.Video
	var verr error
	f.view(t, func(ctx context.Context, tx *store.Tx) error {
		v, verr = tx.Video(ctx, key)
		return nil
	})
	return v, verr
}

func (f *fixture) pending(t *testing.T) []store.Mutation {
	t.Helper()
	var out []store.Mutation
	f.view(t, func(ctx context.Context, tx *store.Tx) error {
		var err error
		out, err = tx.PendingMutations(ctx, 0)
		return err
	})
	return out
}

func expectEvent(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", kind)
		}
	}
}

func TestPlaySendsMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	events, unsub := f.bus.Subscribe("outbox.", 16)
	defer unsub()

	require.NoError(t, f.actions.Play(ctx, "theirs"))
	expectEvent(t, events, bus.OutboxQueued)
	v, err := f.video(t, "theirs")
	require.NoError(t, err)
	assert.Equal(t, 1, v.PlaysCount)
	require.Len(t, f.pending(t), 1)

	require.NoError(t, f.sender.Flush(ctx))
	assert.Equal(t, []remote.Op{remote.OpPlay}, f.api.ops())
	assert.Empty(t, f.pending(t))
	res := expectEvent(t, events, bus.OutboxSent).Payload.(bus.OutboxResult)
	assert.Equal(t, "theirs", res.Target)
}

func TestToggleLike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.actions.ToggleLike(ctx, "mine"))
	v, _ := f.video(t, "mine")
	assert.True(t, v.Liked)
	assert.Equal(t, 3, v.LikesCount)

	require.NoError(t, f.actions.ToggleLike(ctx, "mine"))
	v, _ = f.video(t, "mine")
	assert.False(t, v.Liked)
	assert.Equal(t, 2, v.LikesCount)

	require.NoError(t, f.sender.Flush(ctx))
	assert.Equal(t, []remote.Op{remote.OpLike, remote.OpUnlike}, f.api.ops(), "mutations are sent in order")
}

func TestClearNotifications(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.actions.ClearNotifications(context.Background(), "theirs"))
	v, _ := f.video(t, "theirs")
	assert.False(t, v.HasPendingNotifications())
}

func TestLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.actions.Leave(ctx, "theirs"))
	require.NoError(t, f.actions.Leave(ctx, "mine"))
	_, err := f.video(t, "theirs")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, f.sender.Flush(ctx))
	require.Len(t, f.api.calls, 2)
	assert.Equal(t, remote.OpLeave, f.api.calls[0].Op)
	assert.Equal(t, alice, f.api.calls[0].Payload.String("phone"))
	assert.Equal(t, remote.OpDeleteVideo, f.api.calls[1].Op, "the owner leaving deletes the video")
}

func TestRevokeMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.actions.RevokeMember(ctx, "theirs", bob), ErrNotOwner)
	require.NoError(t, f.actions.RevokeMember(ctx, "mine", bob))
	f.view(t, func(ctx context.Context, tx *store.Tx) error {
		members, err := tx.Members(ctx, "mine")
		assert.Empty(t, members)
		return err
	})
	assert.Len(t, f.pending(t), 1)
}

func TestDeleteClips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.update(t, func(ctx context.Context, tx *store.Tx) error {
		for _, c := range []store.Clip{
			{ID: "c1", VideoKey: "theirs", OwnerPhone: alice},
			{ID: "c2", VideoKey: "theirs", OwnerPhone: bob},
		} {
			if err := tx.UpsertClip(ctx, &c); err != nil {
				return err
			}
		}
		return nil
	})

	assert.ErrorIs(t, f.actions.DeleteClips(ctx, "theirs", []string{"c1", "c2"}), ErrNotOwner)
	require.NoError(t, f.actions.DeleteClips(ctx, "theirs", []string{"c1", "unknown"}))
	f.view(t, func(ctx context.Context, tx *store.Tx) error {
		clips, err := tx.Clips(ctx, "theirs")
		require.Len(t, clips, 1)
		assert.Equal(t, "c2", clips[0].ID)
		return err
	})

	require.NoError(t, f.sender.Flush(ctx))
	require.Len(t, f.api.calls, 1)
	assert.Equal(t, "c1", f.api.calls[0].Payload.String("clip"))
}

func TestCreateVideoAck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key, err := f.actions.CreateVideo(ctx, "holiday")
	require.NoError(t, err)
	v, err := f.video(t, key)
	require.NoError(t, err)
	assert.True(t, v.IsLocal())
	assert.Equal(t, store.OrderNew, v.Order)
	assert.Equal(t, alice, v.OwnerPhone)

	assert.ErrorIs(t, f.actions.Play(ctx, key), ErrUnconfirmed)

	f.api.results[remote.OpCreate] = remote.Record{
		"hash_key": "srv1",
		"title":    "holiday",
		"owner":    map[string]any{"phone_number": alice},
	}
	require.NoError(t, f.sender.Flush(ctx))
	assert.Equal(t, "holiday", f.api.calls[0].Payload.String("title"))
	assert.Empty(t, f.api.calls[0].Target)

	_, err = f.video(t, key)
	assert.ErrorIs(t, err, store.ErrNotFound)
	srv, err := f.video(t, "srv1")
	require.NoError(t, err)
	assert.Equal(t, store.OrderNew, srv.Order, "stays on top until the next reorder")
}

func TestRejectedCreateDeletesLocalVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	events, unsub := f.bus.Subscribe(bus.OutboxFailed, 4)
	defer unsub()

	key, err := f.actions.CreateVideo(ctx, "bad")
	require.NoError(t, err)
	f.api.setErr(remote.OpCreate, httpError(400))
	require.NoError(t, f.sender.Flush(ctx))

	_, err = f.video(t, key)
	assert.ErrorIs(t, err, store.ErrNotFound)
	res := expectEvent(t, events, bus.OutboxFailed).Payload.(bus.OutboxResult)
	assert.NotEmpty(t, res.Err)
	assert.Empty(t, f.refresher.calls)
	f.view(t, func(ctx context.Context, tx *store.Tx) error {
		m, err := tx.Mutation(ctx, res.MutationID)
		assert.Equal(t, "failed", m.Status)
		return err
	})
}

func TestRejectedMutationRefetchesVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.actions.Leave(ctx, "theirs"))
	f.api.setErr(remote.OpLeave, httpError(403))
	// 403 reads as a rejected token, which is retried.
	assert.Error(t, f.sender.Flush(ctx))
	assert.Len(t, f.pending(t), 1)

	f.api.setErr(remote.OpLeave, httpError(409))
	require.NoError(t, f.sender.Flush(ctx))
	assert.Empty(t, f.pending(t))
	assert.Equal(t, []string{"theirs"}, f.refresher.calls)
}

func TestRetryableFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.actions.Play(ctx, "mine"))
	require.NoError(t, f.actions.ToggleLike(ctx, "mine"))
	f.api.setErr(remote.OpPlay, httpError(503))

	err := f.sender.Flush(ctx)
	assert.Error(t, err)
	assert.Len(t, f.pending(t), 2)
	assert.Equal(t, []remote.Op{remote.OpPlay}, f.api.ops(), "later mutations wait for earlier ones")

	f.api.setErr(remote.OpPlay, nil)
	require.NoError(t, f.sender.Flush(ctx))
	assert.Equal(t, []remote.Op{remote.OpPlay, remote.OpPlay, remote.OpLike}, f.api.ops())
}

func TestStartResumesInterruptedMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.actions.Play(ctx, "mine"))
	f.update(t, func(ctx context.Context, tx *store.Tx) error {
		pending, err := tx.PendingMutations(ctx, 0)
		if err != nil {
			return err
		}
		return tx.MarkMutationSending(ctx, pending[0].MutationID)
	})
	require.Empty(t, f.pending(t))

	f.sender.Start(ctx)
	defer f.sender.Stop()
	assert.Eventually(t, func() bool {
		return len(f.api.ops()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("connection reset")))
	assert.True(t, retryable(httpError(0)))
	assert.True(t, retryable(httpError(500)))
	assert.True(t, retryable(httpError(429)))
	assert.True(t, retryable(httpError(401)))
	assert.False(t, retryable(httpError(400)))
	assert.False(t, retryable(httpError(404)))
}
