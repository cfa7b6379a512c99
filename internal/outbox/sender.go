package outbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/matheus3301/gravvy/internal/bus"
	"github.com/matheus3301/gravvy/internal/importer"
	"github.com/matheus3301/gravvy/internal/pool"
	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/store"
)

const (
	defaultInterval = 5 * time.Second
	batchSize       = 32
)

// Refresher re-reads a video from the server.
type Refresher interface {
	RefreshVideo(ctx context.Context, hashKey string) error
}

// Sender drains the outbox and mirrors each mutation to the server, in the
// order the mutations were made.
type Sender struct {
	pool      *pool.Pool
	api       remote.API
	refresher Refresher
	bus       *bus.Bus
	logger    *zap.Logger
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSender creates a new outbox sender. refresher, if not nil, restores
// the server state of a video after one of its mutations was rejected.
func NewSender(p *pool.Pool, api remote.API, refresher Refresher, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		pool:      p,
		api:       api,
		refresher: refresher,
		bus:       b,
		logger:    logger,
		interval:  defaultInterval,
	}
}

// Start begins draining the outbox whenever a mutation is queued, a store
// opens, or the retry interval passes.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	queued, unsubQueued := s.bus.Subscribe(bus.OutboxQueued, 16)
	opened, unsubOpened := s.bus.Subscribe(bus.StoreAvailable, 4)
	go func() {
		defer close(s.done)
		defer unsubQueued()
		defer unsubOpened()
		s.loop(ctx, queued, opened)
	}()
}

// Stop stops the sender loop and waits for it.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context, queued, opened <-chan bus.Event) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.pool.IsOpen() {
		s.resume(ctx)
	}
	for {
		select {
		case <-queued:
			s.flush(ctx)
		case <-opened:
			s.resume(ctx)
		case <-ticker.C:
			if s.pool.IsOpen() {
				s.flush(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

// resume requeues mutations an interrupted process left in flight, then
// drains the queue.
func (s *Sender) resume(ctx context.Context) {
	err := s.pool.Run(ctx, pool.General, func(ctx context.Context, c *pool.Context) error {
		_, err := c.Update(ctx, "outbox requeue", func(tx *store.Tx) error {
			n, err := tx.RequeueSending(ctx)
			if n > 0 {
				s.logger.Info("requeued interrupted mutations", zap.Int64("count", n))
			}
			return err
		})
		return err
	})
	if err != nil {
		s.logger.Error("failed to requeue outbox", zap.Error(err))
		return
	}
	s.flush(ctx)
}

func (s *Sender) flush(ctx context.Context) {
	if err := s.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pool.ErrNotOpen) {
		s.logger.Warn("outbox flush stopped", zap.Error(err))
	}
}

// Flush sends queued mutations until the queue is empty or a delivery
// fails in a way worth retrying, in which case that error is returned and
// the mutation stays queued.
func (s *Sender) Flush(ctx context.Context) error {
	return s.pool.Run(ctx, pool.General, func(ctx context.Context, c *pool.Context) error {
		for {
			var pending []store.Mutation
			err := c.View(ctx, func(tx *store.Tx) error {
				var err error
				pending, err = tx.PendingMutations(ctx, batchSize)
				return err
			})
			if err != nil {
				return fmt.Errorf("read outbox: %w", err)
			}
			if len(pending) == 0 {
				return nil
			}
			for _, m := range pending {
				if err := s.send(ctx, c, m); err != nil {
					return err
				}
			}
		}
	})
}

func (s *Sender) send(ctx context.Context, c *pool.Context, m store.Mutation) error {
	if _, err := c.Update(ctx, "outbox", func(tx *store.Tx) error {
		return tx.MarkMutationSending(ctx, m.MutationID)
	}); err != nil {
		return err
	}

	mut := remote.Mutation{ID: m.MutationID, Op: remote.Op(m.Op), Target: m.Target}
	if err := json.Unmarshal([]byte(m.Payload), &mut.Payload); err != nil {
		return s.fail(ctx, c, m, fmt.Errorf("decode payload: %w", err))
	}
	if mut.Op == remote.OpCreate {
		mut.Target = ""
	}

	rec, err := s.api.Mutate(ctx, mut)
	if err != nil {
		if retryable(err) {
			if _, rerr := c.Update(ctx, "outbox", func(tx *store.Tx) error {
				_, err := tx.RequeueSending(ctx)
				return err
			}); rerr != nil {
				s.logger.Error("failed to requeue mutation", zap.String("mutation_id", m.MutationID), zap.Error(rerr))
			}
			return fmt.Errorf("send %s %s: %w", m.Op, m.Target, err)
		}
		return s.fail(ctx, c, m, err)
	}
	return s.ack(ctx, c, m, rec)
}

// ack marks a mutation sent. An acknowledged creation replaces the local
// video with the server's record, which keeps the local rank.
func (s *Sender) ack(ctx context.Context, c *pool.Context, m store.Mutation, rec remote.Record) error {
	_, err := c.Update(importer.WithLogger(ctx, s.logger), "outbox ack", func(tx *store.Tx) error {
		if err := tx.MarkMutationSent(ctx, m.MutationID); err != nil {
			return err
		}
		if remote.Op(m.Op) != remote.OpCreate || !rec.Has(importer.FieldHashKey) {
			return nil
		}
		local, err := tx.Video(ctx, m.Target)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		videos := importer.Videos{Users: importer.Users{Self: c.Identity()}}
		v, err := importer.FindOrCreateOne(ctx, tx, videos, rec, store.All)
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("created video %s: %w", m.Target, importer.ErrUnresolved)
		}
		v.Order = local.Order
		if err := tx.UpsertVideo(ctx, v); err != nil {
			return err
		}
		_, err = tx.Delete(ctx, store.KindVideo, m.Target)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("mutation sent", zap.String("mutation_id", m.MutationID), zap.String("op", m.Op), zap.String("target", m.Target))
	s.bus.Emit(bus.OutboxSent, bus.OutboxResult{MutationID: m.MutationID, Op: m.Op, Target: m.Target})
	return nil
}

// fail marks a rejected mutation failed and restores the server's view of
// the video: a rejected creation is deleted, anything else re-fetched.
func (s *Sender) fail(ctx context.Context, c *pool.Context, m store.Mutation, cause error) error {
	create := remote.Op(m.Op) == remote.OpCreate
	_, err := c.Update(ctx, "outbox failed", func(tx *store.Tx) error {
		if err := tx.MarkMutationFailed(ctx, m.MutationID, cause.Error()); err != nil {
			return err
		}
		if create {
			_, err := tx.Delete(ctx, store.KindVideo, m.Target)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Warn("mutation rejected", zap.String("mutation_id", m.MutationID), zap.String("op", m.Op), zap.Error(cause))
	s.bus.Emit(bus.OutboxFailed, bus.OutboxResult{MutationID: m.MutationID, Op: m.Op, Target: m.Target, Err: cause.Error()})

	if !create && s.refresher != nil {
		if err := s.refresher.RefreshVideo(ctx, m.Target); err != nil {
			s.logger.Warn("refetch after rejected mutation failed", zap.String("target", m.Target), zap.Error(err))
		}
	}
	return nil
}

// retryable reports whether a delivery failure may succeed later: network
// errors, server errors, throttling and rejected tokens. Other client
// errors are final.
func retryable(err error) bool {
	var re *remote.Error
	if !errors.As(err, &re) {
		return true
	}
	switch {
	case re.StatusCode == 0:
		return true
	case re.StatusCode >= http.StatusInternalServerError:
		return true
	case re.StatusCode == http.StatusTooManyRequests:
		return true
	case errors.Is(re, remote.ErrUnauthorized):
		return true
	}
	return false
}
