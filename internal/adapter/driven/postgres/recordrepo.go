package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RecordStore = (*RecordRepo)(nil)

// recordColumns must match the Scan order in scanRecord.
var recordColumns = []string{
	"comment_id", "post_urn", "comment_text", "author_name", "author_profile_url", "metadata",
	"received_at", "polarity", "label", "response_text", "template_id", "processed_at", "awaiting_dispatch",
}

var selectRecordByID = `SELECT ` + strings.Join(recordColumns, ", ") + ` FROM processed_records WHERE comment_id = $1`

// RecordRepo is the PostgreSQL implementation of the RecordStore port interface.
type RecordRepo struct {
	pool *pgxpool.Pool
}

// NewRecordRepo creates a RecordRepo from the shared pool.
func NewRecordRepo(pool *pgxpool.Pool) *RecordRepo {
	return &RecordRepo{pool: pool}
}

// CreateIfAbsent inserts rec unless the comment ID is already stored. The
// primary key decides between concurrent writers across replicas; the
// pending dispatch row commits in the same transaction.
func (r *RecordRepo) CreateIfAbsent(ctx context.Context, rec model.ProcessedRecord) (model.ProcessedRecord, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.ProcessedRecord{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	const insert = `
		INSERT INTO processed_records (
			comment_id, post_urn, comment_text, author_name, author_profile_url, metadata,
			received_at, polarity, label, response_text, template_id, processed_at, awaiting_dispatch
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (comment_id) DO NOTHING
	`

	tag, err := tx.Exec(ctx, insert,
		rec.Comment.ID, rec.Comment.PostURN, rec.Comment.Text, rec.Comment.AuthorName,
		rec.Comment.AuthorProfileURL, emptyIfNil(rec.Comment.Metadata), rec.Comment.ReceivedAt.UTC(),
		rec.Sentiment.Polarity, string(rec.Sentiment.Label), rec.Response.Text, rec.Response.TemplateID,
		rec.ProcessedAt.UTC(), rec.AwaitingDispatch,
	)
	if err != nil {
		return model.ProcessedRecord{}, false, fmt.Errorf("insert record %s: %w", rec.Comment.ID, err)
	}

	if tag.RowsAffected() == 0 {
		existing, err := scanRecord(tx.QueryRow(ctx, selectRecordByID, rec.Comment.ID))
		if err != nil {
			return model.ProcessedRecord{}, false, fmt.Errorf("read existing record %s: %w", rec.Comment.ID, err)
		}
		return *existing, false, nil
	}

	if rec.AwaitingDispatch {
		const dispatch = `INSERT INTO dispatches (comment_id, status, updated_at) VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, dispatch, rec.Comment.ID, string(model.DispatchPending), rec.ProcessedAt.UTC()); err != nil {
			return model.ProcessedRecord{}, false, fmt.Errorf("insert dispatch %s: %w", rec.Comment.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.ProcessedRecord{}, false, fmt.Errorf("commit record %s: %w", rec.Comment.ID, err)
	}

	return rec, true, nil
}

// Get returns nil, nil if the record does not exist.
func (r *RecordRepo) Get(ctx context.Context, commentID string) (*model.ProcessedRecord, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, selectRecordByID, commentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", commentID, err)
	}
	return rec, nil
}

// List returns records matching filter, most recently processed first.
func (r *RecordRepo) List(ctx context.Context, filter model.RecordFilter) ([]model.ProcessedRecord, error) {
	q := psql.Select(recordColumns...).
		From("processed_records").
		OrderBy("processed_at DESC", "comment_id")

	if filter.Label != "" {
		q = q.Where(sq.Eq{"label": string(filter.Label)})
	}
	if filter.PostURN != "" {
		q = q.Where(sq.Eq{"post_urn": filter.PostURN})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build record query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []model.ProcessedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// CountByLabel returns the number of records per label, zero-filled.
func (r *RecordRepo) CountByLabel(ctx context.Context) (map[model.SentimentLabel]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT label, COUNT(*) FROM processed_records GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.SentimentLabel]int, len(model.SentimentLabels))
	for _, l := range model.SentimentLabels {
		counts[l] = 0
	}

	for rows.Next() {
		var label string
		var n int64
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[model.SentimentLabel(label)] = int(n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}

	return counts, nil
}

func scanRecord(row pgx.Row) (*model.ProcessedRecord, error) {
	var rec model.ProcessedRecord
	var label string

	err := row.Scan(
		&rec.Comment.ID, &rec.Comment.PostURN, &rec.Comment.Text, &rec.Comment.AuthorName,
		&rec.Comment.AuthorProfileURL, &rec.Comment.Metadata, &rec.Comment.ReceivedAt,
		&rec.Sentiment.Polarity, &label, &rec.Response.Text, &rec.Response.TemplateID,
		&rec.ProcessedAt, &rec.AwaitingDispatch,
	)
	if err != nil {
		return nil, err
	}

	rec.Sentiment.Label = model.SentimentLabel(label)
	rec.Comment.Metadata = nilIfEmpty(rec.Comment.Metadata)
	rec.Comment.ReceivedAt = rec.Comment.ReceivedAt.UTC()
	rec.ProcessedAt = rec.ProcessedAt.UTC()

	return &rec, nil
}
