package store

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
)

// DBTX is the subset of database/sql used by the entity queries.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var errReadOnly = errors.New("store: write in read-only transaction")

// Tx is one unit of work against the store. Every write made through it is
// recorded and returned as a ChangeSet when the transaction commits. A Tx is
// only valid inside the function it was passed to.
type Tx struct {
	q        DBTX
	rec      *recorder
	done     atomic.Bool
	readOnly bool
	strict   bool
}

// SetStrict makes use of a finished Tx panic instead of returning ErrTxDone.
func (db *DB) SetStrict(strict bool) {
	db.strict = strict
}

// Update runs fn inside a write transaction. On success the transaction is
// committed and the change set of everything fn wrote is returned. On error
// or panic nothing is written.
func (db *DB) Update(ctx context.Context, source string, fn func(tx *Tx) error) (cs *ChangeSet, err error) {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &PersistenceError{Op: "begin", Path: db.path, Err: err}
	}
	tx := &Tx{q: sqlTx, rec: newRecorder(), strict: db.strict}

	defer func() {
		tx.done.Store(true)
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
			return
		}
		if cerr := sqlTx.Commit(); cerr != nil {
			err = &PersistenceError{Op: "commit", Path: db.path, Err: cerr}
			return
		}
		cs = tx.rec.changeSet(source)
	}()

	err = fn(tx)
	return nil, err
}

// View runs fn inside a read-only transaction, giving it a consistent
// snapshot of committed state.
func (db *DB) View(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return &PersistenceError{Op: "begin", Path: db.path, Err: err}
	}
	tx := &Tx{q: sqlTx, rec: newRecorder(), readOnly: true, strict: db.strict}
	defer func() {
		tx.done.Store(true)
		_ = sqlTx.Rollback()
	}()
	return fn(tx)
}

func (t *Tx) checkRead() error {
	if t.done.Load() {
		if t.strict {
			panic(ErrTxDone)
		}
		return ErrTxDone
	}
	return nil
}

func (t *Tx) checkWrite() error {
	if err := t.checkRead(); err != nil {
		return err
	}
	if t.readOnly {
		return errReadOnly
	}
	return nil
}
