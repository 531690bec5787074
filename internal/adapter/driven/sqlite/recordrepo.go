package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RecordStore = (*RecordRepo)(nil)

var recordColumns = []string{
	"comment_id", "post_urn", "comment_text", "author_name", "author_profile_url", "metadata",
	"received_at", "polarity", "label", "response_text", "template_id", "processed_at", "awaiting_dispatch",
}

// RecordRepo is the SQLite implementation of the RecordStore port interface.
type RecordRepo struct {
	db *DB
}

// NewRecordRepo creates a new RecordRepo backed by the given DB.
func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// CreateIfAbsent inserts rec unless the comment ID is already stored. The
// insert and the pending dispatch row commit together on the single writer
// connection, so exactly one concurrent caller observes created == true.
func (r *RecordRepo) CreateIfAbsent(ctx context.Context, rec model.ProcessedRecord) (model.ProcessedRecord, bool, error) {
	metadata, err := marshalMap(rec.Comment.Metadata)
	if err != nil {
		return model.ProcessedRecord{}, false, fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return model.ProcessedRecord{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insert = `
		INSERT INTO processed_records (
			comment_id, post_urn, comment_text, author_name, author_profile_url, metadata,
			received_at, polarity, label, response_text, template_id, processed_at, awaiting_dispatch
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(comment_id) DO NOTHING
	`

	res, err := tx.ExecContext(ctx, insert,
		rec.Comment.ID, rec.Comment.PostURN, rec.Comment.Text, rec.Comment.AuthorName,
		rec.Comment.AuthorProfileURL, metadata, formatTime(rec.Comment.ReceivedAt),
		rec.Sentiment.Polarity, string(rec.Sentiment.Label), rec.Response.Text, rec.Response.TemplateID,
		formatTime(rec.ProcessedAt), boolToInt(rec.AwaitingDispatch),
	)
	if err != nil {
		return model.ProcessedRecord{}, false, fmt.Errorf("insert record %s: %w", rec.Comment.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return model.ProcessedRecord{}, false, fmt.Errorf("check rows affected: %w", err)
	}

	if n == 0 {
		existing, err := scanRecord(tx.QueryRowContext(ctx, selectRecordByID, rec.Comment.ID))
		if err != nil {
			return model.ProcessedRecord{}, false, fmt.Errorf("read existing record %s: %w", rec.Comment.ID, err)
		}
		return *existing, false, nil
	}

	if rec.AwaitingDispatch {
		const dispatch = `
			INSERT INTO dispatches (comment_id, status, updated_at)
			VALUES (?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, dispatch,
			rec.Comment.ID, string(model.DispatchPending), formatTime(rec.ProcessedAt),
		); err != nil {
			return model.ProcessedRecord{}, false, fmt.Errorf("insert dispatch %s: %w", rec.Comment.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.ProcessedRecord{}, false, fmt.Errorf("commit record %s: %w", rec.Comment.ID, err)
	}

	return rec, true, nil
}

var selectRecordByID = `SELECT ` + strings.Join(recordColumns, ", ") + ` FROM processed_records WHERE comment_id = ?`

// Get retrieves a single record by comment ID.
// Returns nil, nil if the record does not exist.
func (r *RecordRepo) Get(ctx context.Context, commentID string) (*model.ProcessedRecord, error) {
	rec, err := scanRecord(r.db.Reader.QueryRowContext(ctx, selectRecordByID, commentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", commentID, err)
	}

	return rec, nil
}

// List returns records matching filter, most recently processed first.
func (r *RecordRepo) List(ctx context.Context, filter model.RecordFilter) ([]model.ProcessedRecord, error) {
	q := sq.Select(recordColumns...).
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

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
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

// CountByLabel returns the number of records per sentiment label. Every
// known label is present in the result.
func (r *RecordRepo) CountByLabel(ctx context.Context) (map[model.SentimentLabel]int, error) {
	const query = `SELECT label, COUNT(*) FROM processed_records GROUP BY label`

	rows, err := r.db.Reader.QueryContext(ctx, query)
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
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[model.SentimentLabel(label)] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}

	return counts, nil
}

func scanRecord(s scanner) (*model.ProcessedRecord, error) {
	var rec model.ProcessedRecord
	var metadata, receivedAt, label, processedAt string
	var awaiting int

	err := s.Scan(
		&rec.Comment.ID, &rec.Comment.PostURN, &rec.Comment.Text, &rec.Comment.AuthorName,
		&rec.Comment.AuthorProfileURL, &metadata, &receivedAt, &rec.Sentiment.Polarity, &label,
		&rec.Response.Text, &rec.Response.TemplateID, &processedAt, &awaiting,
	)
	if err != nil {
		return nil, err
	}

	rec.Sentiment.Label = model.SentimentLabel(label)
	rec.AwaitingDispatch = awaiting != 0

	if rec.Comment.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	rec.Comment.ReceivedAt, err = parseOptionalTime(receivedAt)
	if err != nil {
		return nil, fmt.Errorf("parse received_at: %w", err)
	}

	rec.ProcessedAt, err = parseTime(processedAt)
	if err != nil {
		return nil, fmt.Errorf("parse processed_at: %w", err)
	}

	return &rec, nil
}

func marshalMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// unmarshalMap returns nil for an empty object so round trips preserve a nil map.
func unmarshalMap(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
