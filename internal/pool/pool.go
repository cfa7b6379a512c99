// Package pool owns the open entity store: the foreground graph, the
// background workers and the single writer through which every change set
// reaches the foreground.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/gravvy/internal/bus"
	"github.com/matheus3301/gravvy/internal/lock"
	"github.com/matheus3301/gravvy/internal/serialdispatch"
	"github.com/matheus3301/gravvy/internal/session"
	"github.com/matheus3301/gravvy/internal/status"
	"github.com/matheus3301/gravvy/internal/store"
	"github.com/matheus3301/gravvy/internal/view"
)

// Config configures a Pool.
type Config struct {
	Layout session.Layout
	// Strict turns use of a finished Context or Tx into a panic.
	Strict bool
	// WriteBacklog bounds how many write transactions may wait for the
	// writer.
	WriteBacklog int
}

// Pool manages the store of the signed-in account.
type Pool struct {
	cfg     Config
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	loop    *Loop

	graph atomic.Pointer[view.Graph]

	// life serializes Open and Close. mu guards inst only and is never held
	// while workers are waited on, so a job may call back into the pool
	// during Close.
	life sync.Mutex
	mu   sync.Mutex
	inst *instance
}

// New creates a pool with no store open.
func New(cfg Config, b *bus.Bus, m *status.Machine, logger *zap.Logger) *Pool {
	if cfg.WriteBacklog <= 0 {
		cfg.WriteBacklog = 64
	}
	p := &Pool{
		cfg:     cfg,
		bus:     b,
		machine: m,
		logger:  logger,
		loop:    NewLoop(),
	}
	p.graph.Store(view.New())
	return p
}

// Loop returns the foreground loop.
func (p *Pool) Loop() *Loop {
	return p.loop
}

// Graph returns the foreground graph. It is empty while no store is open.
// Read it on the loop to observe merges in order.
func (p *Pool) Graph() *view.Graph {
	return p.graph.Load()
}

// Identity returns the account of the open store, or "".
func (p *Pool) Identity() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inst == nil {
		return ""
	}
	return p.inst.identity
}

// IsOpen reports whether a store is open.
func (p *Pool) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inst != nil
}

// Open opens the store of identity, an E.164 phone number. Opening the
// already open identity does nothing; a different identity closes the
// current store first.
func (p *Pool) Open(ctx context.Context, identity string) error {
	if err := session.ValidatePhone(identity); err != nil {
		return err
	}

	p.life.Lock()
	defer p.life.Unlock()

	if current := p.Identity(); current != "" {
		if current == identity {
			return nil
		}
		if err := p.closeLocked(ctx); err != nil {
			return fmt.Errorf("close %s: %w", current, err)
		}
	}

	path := p.cfg.Layout.DBPath(identity)
	if err := p.machine.Begin(bus.StoreInfo{Identity: identity, Path: path}); err != nil {
		return err
	}

	inst, err := p.openInstance(ctx, identity, path)
	if err != nil {
		_ = p.machine.Transition(status.Failed)
		p.logger.Error("open store failed", zap.String("account", identity), zap.Error(err))
		return err
	}

	p.mu.Lock()
	p.inst = inst
	p.graph.Store(inst.graph)
	p.mu.Unlock()
	inst.start()
	p.logger.Info("store opened", zap.String("account", identity), zap.String("path", path))
	return p.machine.Transition(status.Open)
}

func (p *Pool) openInstance(ctx context.Context, identity, path string) (*instance, error) {
	if err := p.cfg.Layout.EnsureDir(identity); err != nil {
		return nil, &store.PersistenceError{Op: "create dir", Path: path, Err: err}
	}
	lk, err := lock.Acquire(p.cfg.Layout.Dir(identity))
	if err != nil {
		return nil, err
	}

	db, err := store.Open(path)
	if err != nil {
		_ = lk.Release()
		return nil, err
	}
	fail := func(err error) (*instance, error) {
		_ = db.Close()
		_ = lk.Release()
		return nil, err
	}

	res, err := db.Migrate()
	if err != nil {
		return fail(err)
	}
	if res.Changed {
		p.logger.Info("store migrated", zap.Uint("version", res.Version))
	}
	db.SetStrict(p.cfg.Strict)

	snap, err := db.LoadSnapshot(ctx)
	if err != nil {
		return fail(err)
	}
	g := view.New()
	g.Apply(snap)

	return newInstance(p, identity, db, lk, g), nil
}

// Close stops accepting work, waits for queued and running jobs and closes
// the store. If ctx ends first, running jobs are canceled and their open
// transactions roll back. Merges still queued for the closed store are
// dropped with its graph. Work submitted once Close has begun, including
// from running jobs, fails with ErrNotOpen.
func (p *Pool) Close(ctx context.Context) error {
	p.life.Lock()
	defer p.life.Unlock()
	return p.closeLocked(ctx)
}

// closeLocked requires p.life.
func (p *Pool) closeLocked(ctx context.Context) error {
	p.mu.Lock()
	inst := p.inst
	p.inst = nil
	p.mu.Unlock()
	if inst == nil {
		return nil
	}
	if err := p.machine.Transition(status.Closing); err != nil {
		p.mu.Lock()
		p.inst = inst
		p.mu.Unlock()
		return err
	}

	inst.stop(ctx)
	p.graph.Store(view.New())

	err := errors.Join(inst.db.Close(), inst.lock.Release())
	if err != nil {
		_ = p.machine.Transition(status.Failed)
		p.logger.Error("close store failed", zap.String("account", inst.identity), zap.Error(err))
		return err
	}
	p.logger.Info("store closed", zap.String("account", inst.identity))
	return p.machine.Transition(status.Closed)
}

// Perform queues job on worker. done, if not nil, runs on the foreground
// loop after the job returns and after the merges of what it committed.
func (p *Pool) Perform(w Worker, job Job, done func(error)) error {
	inst, err := p.current()
	if err != nil {
		return err
	}
	return inst.submit(w, &task{ctx: inst.ctx, job: job, done: done})
}

// Run runs job on worker and waits for it. It blocks the caller, never the
// foreground loop. Canceling ctx cancels the job.
func (p *Pool) Run(ctx context.Context, w Worker, job Job) error {
	inst, err := p.current()
	if err != nil {
		return err
	}
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(inst.ctx, cancel)
	defer stop()

	result := make(chan error, 1)
	if err := inst.submit(w, &task{ctx: jobCtx, job: job, result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) current() (*instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inst == nil {
		return nil, ErrNotOpen
	}
	return p.inst, nil
}

// instance is one open store and the goroutines serving it.
type instance struct {
	pool     *Pool
	identity string
	db       *store.DB
	lock     *lock.Lock
	graph    *view.Graph
	writer   *serialdispatch.Dispatcher
	queues   [LongRunning + 1]*queue
	strict   bool

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
}

func newInstance(p *Pool, identity string, db *store.DB, lk *lock.Lock, g *view.Graph) *instance {
	ctx, cancel := context.WithCancel(context.Background())
	inst := &instance{
		pool:     p,
		identity: identity,
		db:       db,
		lock:     lk,
		graph:    g,
		writer:   serialdispatch.New(p.cfg.WriteBacklog),
		strict:   p.cfg.Strict,
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := range inst.queues {
		inst.queues[i] = newQueue()
	}
	return inst
}

func (inst *instance) start() {
	for i, q := range inst.queues {
		w := Worker(i)
		inst.group.Go(func() error {
			q.drain(func(t *task) { inst.exec(w, t) })
			return nil
		})
	}
}

func (inst *instance) submit(w Worker, t *task) error {
	if !w.valid() {
		return fmt.Errorf("pool: unknown worker %d", int(w))
	}
	return inst.queues[w].push(t)
}

func (inst *instance) exec(w Worker, t *task) {
	c := &Context{inst: inst, worker: w}
	err := runJob(t.ctx, c, t.job)
	c.done.Store(true)

	if err != nil && !errors.Is(err, context.Canceled) {
		inst.pool.logger.Warn("job failed", zap.Stringer("worker", w), zap.Error(err))
	}
	if t.done != nil {
		done := t.done
		inst.pool.loop.Post(func() { done(err) })
	}
	if t.result != nil {
		t.result <- err
	}
}

func runJob(ctx context.Context, c *Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if c.inst.strict {
				panic(r)
			}
			err = fmt.Errorf("pool: job panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return job(ctx, c)
}

// postMerge hands a committed change set to the foreground. It runs on the
// writer, so merges are posted in commit order.
func (inst *instance) postMerge(cs *store.ChangeSet) {
	if cs.Empty() {
		return
	}
	g := inst.graph
	p := inst.pool
	p.loop.Post(func() {
		if p.graph.Load() != g {
			return
		}
		for _, ch := range g.Apply(cs) {
			p.bus.Emit(bus.DataChanged(string(ch.Kind)), bus.DataChange{
				Collection: string(ch.Kind),
				Upserted:   ch.Upserted,
				Deleted:    ch.Deleted,
				ChangeSet:  cs.ID.String(),
			})
		}
	})
}

// stop closes the queues and waits for the workers. When ctx ends first,
// running jobs are canceled.
func (inst *instance) stop(ctx context.Context) {
	for _, q := range inst.queues {
		q.close()
	}
	finished := make(chan struct{})
	go func() {
		_ = inst.group.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		inst.cancel()
		<-finished
	}
	inst.cancel()
	inst.writer.Close()
}
