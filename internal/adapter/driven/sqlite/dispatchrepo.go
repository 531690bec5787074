package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DispatchStore = (*DispatchRepo)(nil)

// DispatchRepo is the SQLite implementation of the DispatchStore port interface.
type DispatchRepo struct {
	db *DB
}

// NewDispatchRepo creates a new DispatchRepo backed by the given DB.
func NewDispatchRepo(db *DB) *DispatchRepo {
	return &DispatchRepo{db: db}
}

// Claim moves the dispatch to in_flight with a single conditional UPDATE.
func (r *DispatchRepo) Claim(ctx context.Context, commentID string, now, staleBefore time.Time) (bool, error) {
	const query = `
		UPDATE dispatches
		SET status = 'in_flight', claimed_at = ?, attempts = attempts + 1, updated_at = ?
		WHERE comment_id = ?
		  AND (status IN ('pending', 'failed') OR (status = 'in_flight' AND claimed_at < ?))
	`

	ts := formatTime(now)
	res, err := r.db.Writer.ExecContext(ctx, query, ts, ts, commentID, formatTime(staleBefore))
	if err != nil {
		return false, fmt.Errorf("claim dispatch %s: %w", commentID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return n == 1, nil
}

// MarkDelivered records a successful delivery.
func (r *DispatchRepo) MarkDelivered(ctx context.Context, commentID string, at time.Time) error {
	const query = `
		UPDATE dispatches
		SET status = 'delivered', delivered_at = ?, last_error = '', updated_at = ?
		WHERE comment_id = ?
	`

	ts := formatTime(at)
	return r.update(ctx, query, commentID, ts, ts, commentID)
}

// MarkFailed records a rejected delivery so a later sweep can retry it.
func (r *DispatchRepo) MarkFailed(ctx context.Context, commentID string, reason string, at time.Time) error {
	const query = `
		UPDATE dispatches
		SET status = 'failed', last_error = ?, updated_at = ?
		WHERE comment_id = ?
	`

	return r.update(ctx, query, commentID, reason, formatTime(at), commentID)
}

func (r *DispatchRepo) update(ctx context.Context, query, commentID string, args ...any) error {
	res, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update dispatch %s: %w", commentID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("dispatch %s: %w", commentID, model.ErrNotFound)
	}

	return nil
}

// Get retrieves the dispatch state for a comment.
// Returns nil, nil if no dispatch row exists.
func (r *DispatchRepo) Get(ctx context.Context, commentID string) (*model.Dispatch, error) {
	const query = `
		SELECT comment_id, status, attempts, last_error, claimed_at, delivered_at, updated_at
		FROM dispatches
		WHERE comment_id = ?
	`

	d, err := scanDispatch(r.db.Reader.QueryRowContext(ctx, query, commentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dispatch %s: %w", commentID, err)
	}

	return d, nil
}

// ListRetryable returns pending or failed dispatches untouched since before,
// oldest first.
func (r *DispatchRepo) ListRetryable(ctx context.Context, before time.Time, limit int) ([]string, error) {
	query := `
		SELECT comment_id
		FROM dispatches
		WHERE status IN ('pending', 'failed') AND updated_at < ?
		ORDER BY updated_at, comment_id
	`
	args := []any{formatTime(before)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query retryable dispatches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan dispatch id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}

	return ids, nil
}

func scanDispatch(s scanner) (*model.Dispatch, error) {
	var d model.Dispatch
	var status, claimedAt, deliveredAt, updatedAt string

	err := s.Scan(&d.CommentID, &status, &d.Attempts, &d.LastError, &claimedAt, &deliveredAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.Status = model.DispatchStatus(status)

	if d.ClaimedAt, err = parseOptionalTime(claimedAt); err != nil {
		return nil, fmt.Errorf("parse claimed_at: %w", err)
	}
	if d.DeliveredAt, err = parseOptionalTime(deliveredAt); err != nil {
		return nil, fmt.Errorf("parse delivered_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &d, nil
}
