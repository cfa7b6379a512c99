package store

import (
	"context"
	"fmt"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// table maps a kind to its table and identity column.
type table struct {
	name string
	id   string
}

var tables = map[Kind]table{
	KindUser:      {"users", "phone"},
	KindThumbnail: {"thumbnails", "user_phone"},
	KindContact:   {"contacts", "record_id"},
	KindVideo:     {"videos", "hash_key"},
	KindClip:      {"clips", "id"},
	KindMember:    {"members", "member_key"},
	KindActivity:  {"activities", "id"},
}

func queryAll[T any](ctx context.Context, q DBTX, query string, args []any, scan func(rowScanner) (T, error)) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// findIn loads the rows of selectFrom whose idColumn is in ids, narrowed by
// scope, with a single query.
func findIn[T any](ctx context.Context, t *Tx, selectFrom, idColumn string, ids []string, scope Scope, scan func(rowScanner) (T, error)) ([]T, error) {
	if err := t.checkRead(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	list, err := idList(ids)
	if err != nil {
		return nil, err
	}
	q, args := scope.apply(selectFrom+" WHERE "+idColumn+" IN (SELECT value FROM json_each(?))", []any{list})
	return queryAll(ctx, t.q, q, args, scan)
}

// DeleteNotIn deletes every entity of kind k that matches scope and whose
// identity is not in keep. It returns the deleted identities. Owned children
// of deleted entities are removed by cascade.
func (t *Tx) DeleteNotIn(ctx context.Context, k Kind, keep []string, scope Scope) ([]string, error) {
	if err := t.checkWrite(); err != nil {
		return nil, err
	}
	tbl, ok := tables[k]
	if !ok {
		return nil, fmt.Errorf("delete stale: unknown kind %q", k)
	}
	list, err := idList(keep)
	if err != nil {
		return nil, err
	}
	q, args := scope.apply("DELETE FROM "+tbl.name+" WHERE "+tbl.id+" NOT IN (SELECT value FROM json_each(?))", []any{list})
	deleted, err := queryAll(ctx, t.q, q+" RETURNING "+tbl.id, args, scanString)
	if err != nil {
		return nil, fmt.Errorf("delete stale %s: %w", k, err)
	}
	for _, id := range deleted {
		t.rec.remove(k, id)
	}
	return deleted, nil
}

// Delete removes one entity by identity. It reports whether a row existed.
func (t *Tx) Delete(ctx context.Context, k Kind, id string) (bool, error) {
	if err := t.checkWrite(); err != nil {
		return false, err
	}
	tbl, ok := tables[k]
	if !ok {
		return false, fmt.Errorf("delete: unknown kind %q", k)
	}
	res, err := t.q.ExecContext(ctx, "DELETE FROM "+tbl.name+" WHERE "+tbl.id+" = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete %s %q: %w", k, id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	t.rec.remove(k, id)
	return true, nil
}

func scanString(r rowScanner) (string, error) {
	var s string
	err := r.Scan(&s)
	return s, err
}
