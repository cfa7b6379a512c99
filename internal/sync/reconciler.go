package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/gravvy/internal/store"
)

const checkpointPrefix = "refreshed_at."

// Reconciler manages refresh checkpoints: when each collection was last
// brought in line with the server. Checkpoints are written in the
// transaction of the refresh they describe.
type Reconciler struct {
	now func() time.Time
}

// NewReconciler creates a new reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{now: time.Now}
}

// Mark records that collection was refreshed now.
func (r *Reconciler) Mark(ctx context.Context, tx *store.Tx, collection string) error {
	value := r.now().UTC().Format(time.RFC3339Nano)
	if err := tx.SetSyncState(ctx, checkpointPrefix+collection, value); err != nil {
		return fmt.Errorf("checkpoint %s: %w", collection, err)
	}
	return nil
}

// LastRefresh returns when collection was last refreshed, or the zero time.
func (r *Reconciler) LastRefresh(ctx context.Context, tx *store.Tx, collection string) (time.Time, error) {
	value, err := tx.SyncState(ctx, checkpointPrefix+collection)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("checkpoint %s: %w", collection, err)
	}
	return t, nil
}

// Due reports whether collection was last refreshed longer than maxAge ago.
func (r *Reconciler) Due(ctx context.Context, tx *store.Tx, collection string, maxAge time.Duration) (bool, error) {
	last, err := r.LastRefresh(ctx, tx, collection)
	if err != nil {
		return false, err
	}
	return last.IsZero() || r.now().Sub(last) >= maxAge, nil
}
