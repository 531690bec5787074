package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DispatchStore = (*DispatchRepo)(nil)

// DispatchRepo is the PostgreSQL implementation of the DispatchStore port interface.
type DispatchRepo struct {
	pool *pgxpool.Pool
}

// NewDispatchRepo creates a DispatchRepo from the shared pool.
func NewDispatchRepo(pool *pgxpool.Pool) *DispatchRepo {
	return &DispatchRepo{pool: pool}
}

// Claim moves the dispatch to in_flight with a single conditional UPDATE;
// row locking makes it safe across replicas.
func (r *DispatchRepo) Claim(ctx context.Context, commentID string, now, staleBefore time.Time) (bool, error) {
	const query = `
		UPDATE dispatches
		SET status = 'in_flight', claimed_at = $1, attempts = attempts + 1, updated_at = $1
		WHERE comment_id = $2
		  AND (status IN ('pending', 'failed') OR (status = 'in_flight' AND claimed_at < $3))
	`

	tag, err := r.pool.Exec(ctx, query, now.UTC(), commentID, staleBefore.UTC())
	if err != nil {
		return false, fmt.Errorf("claim dispatch %s: %w", commentID, err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkDelivered records a successful delivery.
func (r *DispatchRepo) MarkDelivered(ctx context.Context, commentID string, at time.Time) error {
	const query = `
		UPDATE dispatches
		SET status = 'delivered', delivered_at = $1, last_error = '', updated_at = $1
		WHERE comment_id = $2
	`
	return r.update(ctx, query, commentID, at.UTC(), commentID)
}

// MarkFailed records a rejected delivery.
func (r *DispatchRepo) MarkFailed(ctx context.Context, commentID string, reason string, at time.Time) error {
	const query = `
		UPDATE dispatches
		SET status = 'failed', last_error = $1, updated_at = $2
		WHERE comment_id = $3
	`
	return r.update(ctx, query, commentID, reason, at.UTC(), commentID)
}

func (r *DispatchRepo) update(ctx context.Context, query, commentID string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update dispatch %s: %w", commentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dispatch %s: %w", commentID, model.ErrNotFound)
	}
	return nil
}

// Get returns nil, nil if no dispatch row exists.
func (r *DispatchRepo) Get(ctx context.Context, commentID string) (*model.Dispatch, error) {
	const query = `
		SELECT comment_id, status, attempts, last_error, claimed_at, delivered_at, updated_at
		FROM dispatches
		WHERE comment_id = $1
	`

	var d model.Dispatch
	var status string
	var claimedAt, deliveredAt *time.Time

	err := r.pool.QueryRow(ctx, query, commentID).Scan(
		&d.CommentID, &status, &d.Attempts, &d.LastError, &claimedAt, &deliveredAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dispatch %s: %w", commentID, err)
	}

	d.Status = model.DispatchStatus(status)
	d.UpdatedAt = d.UpdatedAt.UTC()
	if claimedAt != nil {
		d.ClaimedAt = claimedAt.UTC()
	}
	if deliveredAt != nil {
		d.DeliveredAt = deliveredAt.UTC()
	}

	return &d, nil
}

// ListRetryable returns pending or failed dispatches untouched since before,
// oldest first.
func (r *DispatchRepo) ListRetryable(ctx context.Context, before time.Time, limit int) ([]string, error) {
	q := psql.Select("comment_id").
		From("dispatches").
		Where("status IN ('pending', 'failed')").
		Where("updated_at < ?", before.UTC()).
		OrderBy("updated_at", "comment_id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build dispatch query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query retryable dispatches: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect dispatch ids: %w", err)
	}

	return ids, nil
}
