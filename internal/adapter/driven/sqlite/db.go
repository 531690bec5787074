// Package sqlite implements the persistence ports on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Connection pool sizes. The writer is a single connection so concurrent
// CreateIfAbsent and Claim calls queue instead of failing with
// "database is locked".
const (
	writerConns = 1
	readerConns = 4
)

// basePragmas apply to file and in-memory databases alike.
var basePragmas = []string{
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"cache_size(-64000)",
}

// DB holds separate writer and reader pools over one database.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
}

// NewDB opens the database file at dbPath in WAL mode.
func NewDB(dbPath string) (*DB, error) {
	return open(fileDSN(dbPath))
}

func fileDSN(path string) string {
	return "file:" + path + "?" + pragmaQuery(append([]string{"journal_mode(WAL)"}, basePragmas...))
}

// memoryDSN names a shared-cache in-memory database. WAL does not apply
// there, so journal_mode is left out.
func memoryDSN(name string) string {
	return "file:" + name + "?mode=memory&cache=shared&" + pragmaQuery(basePragmas)
}

func pragmaQuery(pragmas []string) string {
	parts := make([]string, len(pragmas))
	for i, p := range pragmas {
		parts[i] = "_pragma=" + p
	}
	return strings.Join(parts, "&")
}

func open(dsn string) (*DB, error) {
	writer, err := openPool("writer", dsn, writerConns)
	if err != nil {
		return nil, err
	}

	reader, err := openPool("reader", dsn, readerConns)
	if err != nil {
		_ = writer.Close()
		return nil, err
	}

	return &DB{Writer: writer, Reader: reader}, nil
}

func openPool(role, dsn string, maxConns int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", role, err)
	}
	pool.SetMaxOpenConns(maxConns)

	if err := pool.Ping(); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping %s: %w", role, err)
	}
	return pool, nil
}

// Ping verifies the writer connection is usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Writer.PingContext(ctx)
}

// Close closes both pools and returns the first error.
func (db *DB) Close() error {
	return errors.Join(closePool("reader", db.Reader), closePool("writer", db.Writer))
}

func closePool(role string, pool *sql.DB) error {
	if err := pool.Close(); err != nil {
		return fmt.Errorf("close %s: %w", role, err)
	}
	return nil
}

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		timeLayout,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

// parseOptionalTime maps the empty string to the zero time.
func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return parseTime(s)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
