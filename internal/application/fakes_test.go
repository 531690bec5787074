package application_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/commentbot/internal/application"
	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
)

// --- In-memory stores mirroring the SQL adapters' semantics ---

type memDispatchStore struct {
	mu   sync.Mutex
	rows map[string]*model.Dispatch
}

var _ driven.DispatchStore = (*memDispatchStore)(nil)

func newMemDispatchStore() *memDispatchStore {
	return &memDispatchStore{rows: make(map[string]*model.Dispatch)}
}

func (m *memDispatchStore) insertPending(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		m.rows[id] = &model.Dispatch{CommentID: id, Status: model.DispatchPending, UpdatedAt: at}
	}
}

func (m *memDispatchStore) Claim(_ context.Context, id string, now, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	switch {
	case d.Status == model.DispatchPending, d.Status == model.DispatchFailed:
	case d.Status == model.DispatchInFlight && d.ClaimedAt.Before(staleBefore):
	default:
		return false, nil
	}

	d.Status = model.DispatchInFlight
	d.ClaimedAt = now
	d.Attempts++
	d.UpdatedAt = now
	return true, nil
}

func (m *memDispatchStore) MarkDelivered(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return errors.New("no dispatch row")
	}
	d.Status = model.DispatchDelivered
	d.DeliveredAt = at
	d.LastError = ""
	d.UpdatedAt = at
	return nil
}

func (m *memDispatchStore) MarkFailed(_ context.Context, id string, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return errors.New("no dispatch row")
	}
	d.Status = model.DispatchFailed
	d.LastError = reason
	d.UpdatedAt = at
	return nil
}

func (m *memDispatchStore) Get(_ context.Context, id string) (*model.Dispatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memDispatchStore) ListRetryable(_ context.Context, before time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []*model.Dispatch
	for _, d := range m.rows {
		if (d.Status == model.DispatchPending || d.Status == model.DispatchFailed) && d.UpdatedAt.Before(before) {
			rows = append(rows, d)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UpdatedAt.Before(rows[j].UpdatedAt) })

	var ids []string
	for _, d := range rows {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, d.CommentID)
	}
	return ids, nil
}

type memRecordStore struct {
	mu         sync.Mutex
	records    map[string]model.ProcessedRecord
	dispatches *memDispatchStore
	creates    atomic.Int64
	getErr     error
	createErr  error
	// beforeCreate runs inside CreateIfAbsent before the atomic section.
	beforeCreate func()
}

var _ driven.RecordStore = (*memRecordStore)(nil)

func newMemRecordStore(dispatches *memDispatchStore) *memRecordStore {
	return &memRecordStore{records: make(map[string]model.ProcessedRecord), dispatches: dispatches}
}

func (m *memRecordStore) CreateIfAbsent(ctx context.Context, rec model.ProcessedRecord) (model.ProcessedRecord, bool, error) {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	if m.createErr != nil {
		return model.ProcessedRecord{}, false, m.createErr
	}
	if err := ctx.Err(); err != nil {
		return model.ProcessedRecord{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[rec.Comment.ID]; ok {
		return existing, false, nil
	}
	m.records[rec.Comment.ID] = rec
	m.creates.Add(1)
	if rec.AwaitingDispatch && m.dispatches != nil {
		m.dispatches.insertPending(rec.Comment.ID, rec.ProcessedAt)
	}
	return rec, true, nil
}

func (m *memRecordStore) Get(ctx context.Context, id string) (*model.ProcessedRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memRecordStore) List(_ context.Context, filter model.RecordFilter) ([]model.ProcessedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.ProcessedRecord
	for _, rec := range m.records {
		if filter.Label != "" && rec.Sentiment.Label != filter.Label {
			continue
		}
		if filter.PostURN != "" && rec.Comment.PostURN != filter.PostURN {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Comment.ID < out[j].Comment.ID })
	return out, nil
}

func (m *memRecordStore) CountByLabel(_ context.Context) (map[model.SentimentLabel]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[model.SentimentLabel]int)
	for _, rec := range m.records {
		counts[rec.Sentiment.Label]++
	}
	return counts, nil
}

func (m *memRecordStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// --- Call-counting collaborators ---

type countingClassifier struct {
	inner application.Classifier
	calls atomic.Int64
}

func (c *countingClassifier) Classify(text string) model.SentimentResult {
	c.calls.Add(1)
	return c.inner.Classify(text)
}

type countingGenerator struct {
	inner application.Generator
	calls atomic.Int64
}

func (g *countingGenerator) Generate(s model.SentimentResult, c model.Comment) (model.Response, error) {
	g.calls.Add(1)
	return g.inner.Generate(s, c)
}

type fakeDispatcher struct {
	mu    sync.Mutex
	sent  []model.ProcessedRecord
	err   error
	calls atomic.Int64
}

var _ driven.ResponseDispatcher = (*fakeDispatcher)(nil)

func (d *fakeDispatcher) Dispatch(_ context.Context, rec model.ProcessedRecord) error {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, rec)
	return nil
}

func (d *fakeDispatcher) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

type fixedLimiter struct {
	allow bool
	err   error
	calls atomic.Int64
}

func (l *fixedLimiter) TryAcquire(_ context.Context) (bool, error) {
	l.calls.Add(1)
	return l.allow, l.err
}
