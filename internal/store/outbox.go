package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const mutationColumns = `id, mutation_id, kind, op, target, payload, status, error_message, created_at`

func scanMutation(r rowScanner) (Mutation, error) {
	var m Mutation
	var created int64
	if err := r.Scan(&m.ID, &m.MutationID, &m.Kind, &m.Op, &m.Target, &m.Payload, &m.Status, &m.ErrorMessage, &created); err != nil {
		return Mutation{}, err
	}
	m.CreatedAt = fromMillis(created)
	return m, nil
}

// EnqueueMutation queues a local change for delivery to the server. It is
// written in the same transaction as the local effect of the change.
func (t *Tx) EnqueueMutation(ctx context.Context, m *Mutation) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	if m.Payload == "" {
		m.Payload = "{}"
	}
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO outbox (mutation_id, kind, op, target, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'queued', ?, ?)`,
		m.MutationID, m.Kind, m.Op, m.Target, m.Payload, now, now)
	if err != nil {
		return fmt.Errorf("enqueue mutation %s %s: %w", m.Op, m.Target, err)
	}
	m.ID, _ = res.LastInsertId()
	m.Status = "queued"
	m.CreatedAt = fromMillis(now)
	return nil
}

// PendingMutations returns queued mutations in the order they were made.
func (t *Tx) PendingMutations(ctx context.Context, limit int) ([]Mutation, error) {
	if err := t.checkRead(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	return queryAll(ctx, t.q, `SELECT `+mutationColumns+` FROM outbox WHERE status = 'queued' ORDER BY id ASC LIMIT ?`,
		[]any{limit}, scanMutation)
}

// Mutation returns one mutation by its id, or ErrNotFound.
func (t *Tx) Mutation(ctx context.Context, mutationID string) (Mutation, error) {
	if err := t.checkRead(); err != nil {
		return Mutation{}, err
	}
	m, err := scanMutation(t.q.QueryRowContext(ctx, `SELECT `+mutationColumns+` FROM outbox WHERE mutation_id = ?`, mutationID))
	if errors.Is(err, sql.ErrNoRows) {
		return Mutation{}, ErrNotFound
	}
	return m, err
}

// PendingTargets returns the targets of mutations not yet acknowledged.
func (t *Tx) PendingTargets(ctx context.Context, kind Kind) ([]string, error) {
	if err := t.checkRead(); err != nil {
		return nil, err
	}
	return queryAll(ctx, t.q, `SELECT DISTINCT target FROM outbox WHERE kind = ? AND status IN ('queued', 'sending')`,
		[]any{kind}, scanString)
}

// MarkMutationSending updates a mutation to 'sending'.
func (t *Tx) MarkMutationSending(ctx context.Context, mutationID string) error {
	return t.markMutation(ctx, mutationID, "sending", "")
}

// MarkMutationSent updates a mutation to 'sent'.
func (t *Tx) MarkMutationSent(ctx context.Context, mutationID string) error {
	return t.markMutation(ctx, mutationID, "sent", "")
}

// MarkMutationFailed updates a mutation to 'failed' with an error message.
func (t *Tx) MarkMutationFailed(ctx context.Context, mutationID, errMsg string) error {
	return t.markMutation(ctx, mutationID, "failed", errMsg)
}

// RequeueSending puts mutations left in 'sending' by an interrupted process
// back in the queue.
func (t *Tx) RequeueSending(ctx context.Context) (int64, error) {
	if err := t.checkWrite(); err != nil {
		return 0, err
	}
	res, err := t.q.ExecContext(ctx, `UPDATE outbox SET status = 'queued', updated_at = ? WHERE status = 'sending'`, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("requeue sending: %w", err)
	}
	return res.RowsAffected()
}

func (t *Tx) markMutation(ctx context.Context, mutationID, status, errMsg string) error {
	if err := t.checkWrite(); err != nil {
		return err
	}
	_, err := t.q.ExecContext(ctx, `UPDATE outbox SET status = ?, error_message = ?, updated_at = ? WHERE mutation_id = ?`,
		status, errMsg, time.Now().UnixMilli(), mutationID)
	if err != nil {
		return fmt.Errorf("mark mutation %s %s: %w", mutationID, status, err)
	}
	return nil
}
