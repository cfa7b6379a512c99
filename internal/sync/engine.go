// Package sync keeps the open store in line with the server: it reacts to
// sign-in, push notifications and a periodic timer by running refresh jobs
// on the pool's background workers.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/gravvy/internal/addressbook"
	"github.com/matheus3301/gravvy/internal/bus"
	"github.com/matheus3301/gravvy/internal/pool"
	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/session"
	"github.com/matheus3301/gravvy/internal/store"
)

// Push notification types.
const (
	PushDefault       = 0
	PushInvited       = 10
	PushMemberAdded   = 11
	PushMemberRemoved = 12
	PushClipAdded     = 20
	PushClipDeleted   = 21
)

const closeTimeout = 10 * time.Second

// Options tunes an Engine.
type Options struct {
	// Region reads address-book numbers written without a country code.
	Region string
	// Interval between periodic refreshes. Zero disables them.
	Interval time.Duration
	// ReorderOnStart reranks the videos on the refresh that follows
	// sign-in.
	ReorderOnStart bool
	// ContactsEvery is the minimum age of the address-book import before a
	// periodic refresh repeats it.
	ContactsEvery time.Duration
}

// Engine drives refreshes of the open store.
type Engine struct {
	pool    *pool.Pool
	api     remote.API
	book    addressbook.Source
	session *session.Manager
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options
	recon   *Reconciler

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewEngine creates a new sync engine. book may be nil when no address
// book is available.
func NewEngine(p *pool.Pool, api remote.API, book addressbook.Source, sm *session.Manager, b *bus.Bus, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ContactsEvery <= 0 {
		opts.ContactsEvery = 24 * time.Hour
	}
	return &Engine{
		pool:    p,
		api:     api,
		book:    book,
		session: sm,
		bus:     b,
		logger:  logger,
		opts:    opts,
		recon:   NewReconciler(),
	}
}

// Start subscribes to authentication and push signals and starts the
// periodic refresh. An account already signed in is opened right away.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.group = &errgroup.Group{}

	auth, unsubAuth := e.bus.Subscribe(bus.AuthChanged, 16)
	push, unsubPush := e.bus.Subscribe(bus.PushPrefix, 64)

	if state := e.session.State(); state.Authenticated {
		e.handleAuth(ctx, state)
	}

	e.group.Go(func() error {
		defer unsubAuth()
		defer unsubPush()
		e.loop(ctx, auth, push)
		return nil
	})
}

// Stop stops the engine and waits for running refreshes.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.group != nil {
		_ = e.group.Wait()
	}
}

func (e *Engine) loop(ctx context.Context, auth, push <-chan bus.Event) {
	var tick <-chan time.Time
	if e.opts.Interval > 0 {
		t := time.NewTicker(e.opts.Interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case evt, ok := <-auth:
			if !ok {
				return
			}
			if state, ok := evt.Payload.(bus.AuthState); ok {
				e.handleAuth(ctx, state)
			}
		case evt, ok := <-push:
			if !ok {
				return
			}
			if p, ok := evt.Payload.(bus.Push); ok {
				e.handlePush(ctx, p)
			}
		case <-tick:
			if e.paused() {
				continue
			}
			e.spawn(ctx, "periodic", e.periodic)
		case <-ctx.Done():
			return
		}
	}
}

// handleAuth opens the store of a signed-in account and closes it on
// sign-out. An invalidated token keeps the store open but pauses
// refreshes until the next sign-in.
func (e *Engine) handleAuth(ctx context.Context, state bus.AuthState) {
	switch {
	case state.Authenticated:
		if err := e.pool.Open(ctx, state.Phone); err != nil {
			e.logger.Error("open store failed", zap.String("account", state.Phone), zap.Error(err))
			return
		}
		e.spawn(ctx, "sign-in", func(ctx context.Context) error {
			return e.RefreshAll(ctx, e.opts.ReorderOnStart)
		})
	case state.Phone == "":
		closeCtx, cancel := context.WithTimeout(ctx, closeTimeout)
		defer cancel()
		if err := e.pool.Close(closeCtx); err != nil {
			e.logger.Error("close store failed", zap.Error(err))
		}
	default:
		e.logger.Warn("authentication lost, refreshes paused", zap.String("account", state.Phone))
	}
}

func (e *Engine) handlePush(ctx context.Context, p bus.Push) {
	if e.paused() {
		return
	}
	e.logger.Debug("push notification", zap.Int("type", p.Type), zap.String("video", p.VideoKey))
	switch p.Type {
	case PushDefault:
		e.spawn(ctx, "push", func(ctx context.Context) error {
			if err := e.RefreshVideos(ctx, false); err != nil {
				return err
			}
			return e.RefreshActivities(ctx)
		})
	case PushInvited:
		e.spawn(ctx, "push", func(ctx context.Context) error {
			return e.RefreshVideos(ctx, false)
		})
	case PushMemberAdded, PushMemberRemoved:
		if p.VideoKey == "" {
			return
		}
		e.spawn(ctx, "push", func(ctx context.Context) error {
			if _, ok := e.pool.Graph().Video(p.VideoKey); !ok {
				if err := e.RefreshVideo(ctx, p.VideoKey); err != nil {
					return err
				}
			}
			return e.RefreshMembers(ctx, p.VideoKey)
		})
	case PushClipAdded, PushClipDeleted:
		if p.VideoKey == "" {
			return
		}
		e.spawn(ctx, "push", func(ctx context.Context) error {
			return e.RefreshVideo(ctx, p.VideoKey)
		})
	default:
		e.logger.Debug("ignoring push notification", zap.Int("type", p.Type))
	}
}

// periodic refreshes without reordering. The address book is only re-read
// once its checkpoint is older than ContactsEvery.
func (e *Engine) periodic(ctx context.Context) error {
	contactsDue, err := e.due(ctx, collectionContacts, e.opts.ContactsEvery)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.RefreshVideos(ctx, false) })
	g.Go(func() error { return e.RefreshActivities(ctx) })
	g.Go(func() error { return e.RefreshFavorites(ctx) })
	if contactsDue {
		g.Go(func() error { return e.RefreshContacts(ctx) })
	}
	return g.Wait()
}

func (e *Engine) paused() bool {
	return e.session.Token() == "" || !e.pool.IsOpen()
}

func (e *Engine) spawn(ctx context.Context, name string, fn func(ctx context.Context) error) {
	e.group.Go(func() error {
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Warn("refresh failed", zap.String("trigger", name), zap.Error(err))
		}
		return nil
	})
}

// RefreshAll refreshes every collection concurrently. The first failure
// cancels the others.
func (e *Engine) RefreshAll(ctx context.Context, reorder bool) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.RefreshVideos(ctx, reorder) })
	g.Go(func() error { return e.RefreshActivities(ctx) })
	g.Go(func() error { return e.RefreshFavorites(ctx) })
	g.Go(func() error { return e.RefreshContacts(ctx) })
	return g.Wait()
}

type refreshFunc func(ctx context.Context, c *pool.Context, rep *bus.SyncReport) error

// run runs a refresh on worker w and reports its outcome on the bus. A
// rejected token invalidates the session.
func (e *Engine) run(ctx context.Context, w pool.Worker, collection string, fn refreshFunc) error {
	rep := bus.SyncReport{Collection: collection}
	err := e.pool.Run(ctx, w, func(ctx context.Context, c *pool.Context) error {
		return fn(ctx, c, &rep)
	})
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			e.session.Invalidate()
		}
		rep.Err = err.Error()
		e.bus.Emit(bus.SyncFailed, rep)
		e.logger.Warn("refresh failed", zap.String("collection", collection), zap.Error(err))
		return fmt.Errorf("refresh %s: %w", collection, err)
	}
	e.logger.Debug("refreshed",
		zap.String("collection", collection),
		zap.Int("created", rep.Created),
		zap.Int("updated", rep.Updated),
		zap.Int("deleted", rep.Deleted))
	e.bus.Emit(bus.SyncRefreshed, rep)
	return nil
}

func (e *Engine) due(ctx context.Context, collection string, maxAge time.Duration) (bool, error) {
	var due bool
	err := e.pool.Run(ctx, pool.General, func(ctx context.Context, c *pool.Context) error {
		return c.View(ctx, func(tx *store.Tx) error {
			var err error
			due, err = e.recon.Due(ctx, tx, collection, maxAge)
			return err
		})
	})
	return due, err
}
