// Package importer turns decoded server records into stored entities. One
// query resolves a whole batch against the store, so importing n records
// costs one lookup rather than n.
package importer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/gravvy/internal/remote"
	"github.com/matheus3301/gravvy/internal/store"
)

var (
	// ErrNoIdentity marks a record without a usable identity.
	ErrNoIdentity = errors.New("importer: record has no identity")
	// ErrUnresolved marks a record whose required relationship could not
	// be resolved, e.g. a video without an owner.
	ErrUnresolved = errors.New("importer: unresolved relationship")
)

// Importable describes how one entity type is imported.
type Importable[E any] interface {
	Kind() store.Kind
	// Identity extracts the identity from a record.
	Identity(rec remote.Record) (string, bool)
	// Key returns the identity of an entity.
	Key(e *E) string
	// Find loads the existing entities among ids that match scope.
	Find(ctx context.Context, tx *store.Tx, ids []string, scope store.Scope) ([]E, error)
	// New instantiates an entity that does not exist yet.
	New(id string) *E
	// Sync copies the record into e and resolves its relationships.
	// ErrUnresolved and ErrNoIdentity skip the record; any other error
	// aborts the batch.
	Sync(ctx context.Context, tx *store.Tx, e *E, rec remote.Record) error
	// Save writes e through tx.
	Save(ctx context.Context, tx *store.Tx, e *E) error
}

type loggerKey struct{}

// WithLogger attaches the logger that reports skipped records.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func loggerFrom(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// Result reports what one import did.
type Result[E any] struct {
	// Entities holds one entity per imported identity, in order of first
	// appearance.
	Entities []*E
	Created  int
	Updated  int
	Skipped  int
}

// FindOrCreate imports records, updating the entities that already exist
// within scope and creating the rest. Records are applied in order, so when
// two records share an identity the later one wins. Records that fail on
// their own are skipped.
func FindOrCreate[E any](ctx context.Context, tx *store.Tx, t Importable[E], records []remote.Record, scope store.Scope) ([]*E, error) {
	res, err := Import(ctx, tx, t, records, scope)
	if err != nil {
		return nil, err
	}
	return res.Entities, nil
}

// Import is FindOrCreate with counts of what it did.
func Import[E any](ctx context.Context, tx *store.Tx, t Importable[E], records []remote.Record, scope store.Scope) (Result[E], error) {
	logger := loggerFrom(ctx)
	var res Result[E]

	ids := make([]string, 0, len(records))
	idOf := make([]string, len(records))
	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		id, ok := t.Identity(rec)
		if !ok {
			logger.Debug("skip record without identity", zap.String("kind", string(t.Kind())))
			res.Skipped++
			continue
		}
		idOf[i] = id
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return res, nil
	}

	found, err := t.Find(ctx, tx, ids, scope)
	if err != nil {
		return res, fmt.Errorf("find %s: %w", t.Kind(), err)
	}
	entities := make(map[string]*E, len(ids))
	for i := range found {
		e := &found[i]
		entities[t.Key(e)] = e
	}

	saved := make(map[string]bool, len(ids))
	for i, rec := range records {
		id := idOf[i]
		if id == "" {
			continue
		}
		e, ok := entities[id]
		created := false
		if !ok {
			e = t.New(id)
			created = true
		}
		if err := t.Sync(ctx, tx, e, rec); err != nil {
			if errors.Is(err, ErrUnresolved) || errors.Is(err, ErrNoIdentity) {
				logger.Debug("skip record", zap.String("kind", string(t.Kind())), zap.String("id", id), zap.Error(err))
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("sync %s %q: %w", t.Kind(), id, err)
		}
		if err := t.Save(ctx, tx, e); err != nil {
			return res, fmt.Errorf("save %s %q: %w", t.Kind(), id, err)
		}
		if created {
			entities[id] = e
			res.Created++
		} else {
			res.Updated++
		}
		saved[id] = true
	}

	res.Entities = make([]*E, 0, len(saved))
	for _, id := range ids {
		if saved[id] {
			res.Entities = append(res.Entities, entities[id])
		}
	}
	return res, nil
}

// FindOrCreateOne imports a single record. It returns nil without error
// when the record is skipped.
func FindOrCreateOne[E any](ctx context.Context, tx *store.Tx, t Importable[E], rec remote.Record, scope store.Scope) (*E, error) {
	if rec == nil {
		return nil, nil
	}
	out, err := FindOrCreate(ctx, tx, t, []remote.Record{rec}, scope)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

// DeleteMissing deletes the entities within scope whose identity does not
// appear in records, and returns the deleted identities. Call it in the
// same transaction as the import it completes.
func DeleteMissing[E any](ctx context.Context, tx *store.Tx, t Importable[E], records []remote.Record, scope store.Scope) ([]string, error) {
	keep := make([]string, 0, len(records))
	for _, rec := range records {
		if id, ok := t.Identity(rec); ok {
			keep = append(keep, id)
		}
	}
	deleted, err := tx.DeleteNotIn(ctx, t.Kind(), keep, scope)
	if err != nil {
		return nil, fmt.Errorf("sweep %s: %w", t.Kind(), err)
	}
	if len(deleted) > 0 {
		loggerFrom(ctx).Debug("swept stale entities", zap.String("kind", string(t.Kind())), zap.Int("count", len(deleted)))
	}
	return deleted, nil
}
