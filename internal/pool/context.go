package pool

import (
	"context"
	"sync/atomic"

	"github.com/matheus3301/gravvy/internal/store"
)

// Job is a unit of background work. It must not touch the foreground graph;
// everything it writes reaches the foreground as a change set.
type Job func(ctx context.Context, c *Context) error

// Context gives a job access to the store. It is valid only until the job
// returns.
type Context struct {
	inst   *instance
	worker Worker
	done   atomic.Bool
}

// Worker returns the worker running the job.
func (c *Context) Worker() Worker {
	return c.worker
}

// Identity returns the account of the open store.
func (c *Context) Identity() string {
	return c.inst.identity
}

func (c *Context) check() error {
	if c.done.Load() {
		if c.inst.strict {
			panic(ErrContextDone)
		}
		return ErrContextDone
	}
	return nil
}

// Update runs fn in a write transaction. Writes from every worker are
// serialized. After commit the change set is posted to the foreground loop,
// which merges it into the graph; the foreground does not see the write
// before that.
func (c *Context) Update(ctx context.Context, source string, fn func(tx *store.Tx) error) (*store.ChangeSet, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	var cs *store.ChangeSet
	err := c.inst.writer.Dispatch(ctx, func() error {
		var err error
		cs, err = c.inst.db.Update(ctx, source, fn)
		if err != nil {
			return err
		}
		c.inst.postMerge(cs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// View runs fn in a read-only transaction on the committed state.
func (c *Context) View(ctx context.Context, fn func(tx *store.Tx) error) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.inst.db.View(ctx, fn)
}
