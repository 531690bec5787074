package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commentbot/internal/application"
	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

func seedRecord(t *testing.T, records *memRecordStore, id string, awaiting bool, at time.Time) model.ProcessedRecord {
	t.Helper()
	rec := model.ProcessedRecord{
		Comment:          sampleComment(id, "Great post!"),
		Sentiment:        model.SentimentResult{Polarity: 0.8, Label: model.SentimentPositive},
		Response:         model.Response{Text: "Thanks!", TemplateID: "positive-thanks"},
		ProcessedAt:      at,
		AwaitingDispatch: awaiting,
	}
	_, created, err := records.CreateIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, created)
	return rec
}

func newDispatchFixture(t *testing.T) (*application.DispatchService, *memRecordStore, *memDispatchStore, *fakeDispatcher, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	dispatches := newMemDispatchStore()
	records := newMemRecordStore(dispatches)
	dispatcher := &fakeDispatcher{}
	svc := application.NewDispatchService(dispatcher, records, dispatches,
		application.WithDispatchClock(clock),
		application.WithClaimTTL(time.Minute),
		application.WithRetryMinAge(30*time.Second),
	)
	return svc, records, dispatches, dispatcher, clock
}

func TestDeliver_SendsOnce(t *testing.T) {
	svc, records, dispatches, dispatcher, clock := newDispatchFixture(t)
	rec := seedRecord(t, records, "c1", true, clock.Now())

	require.NoError(t, svc.Deliver(context.Background(), rec))
	require.NoError(t, svc.Deliver(context.Background(), rec))

	assert.Equal(t, int64(1), dispatcher.calls.Load())
	state, err := dispatches.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, model.DispatchDelivered, state.Status)
	assert.Equal(t, 1, state.Attempts)
	assert.Equal(t, clock.Now().UTC(), state.DeliveredAt)
}

func TestDeliver_ConcurrentWorkersSendOnce(t *testing.T) {
	svc, records, _, dispatcher, clock := newDispatchFixture(t)
	rec := seedRecord(t, records, "c1", true, clock.Now())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Deliver(context.Background(), rec))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), dispatcher.calls.Load())
}

func TestDeliver_NoDispatchRowIsSkipped(t *testing.T) {
	svc, records, _, dispatcher, clock := newDispatchFixture(t)
	rec := seedRecord(t, records, "c1", false, clock.Now())

	require.NoError(t, svc.Deliver(context.Background(), rec))
	assert.Zero(t, dispatcher.calls.Load())
}

func TestDeliver_StaleClaimIsTakenOver(t *testing.T) {
	svc, records, dispatches, dispatcher, clock := newDispatchFixture(t)
	rec := seedRecord(t, records, "c1", true, clock.Now())

	// A worker claimed the dispatch and died before reporting back.
	claimed, err := dispatches.Claim(context.Background(), "c1", clock.Now(), clock.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, svc.Deliver(context.Background(), rec))
	assert.Zero(t, dispatcher.calls.Load(), "live claim is honored")

	clock.Advance(2 * time.Minute)
	require.NoError(t, svc.Deliver(context.Background(), rec))
	assert.Equal(t, int64(1), dispatcher.calls.Load())

	state, err := dispatches.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, model.DispatchDelivered, state.Status)
	assert.Equal(t, 2, state.Attempts)
}

func TestRetry_Errors(t *testing.T) {
	svc, records, _, _, clock := newDispatchFixture(t)
	seedRecord(t, records, "quiet", false, clock.Now())

	_, err := svc.Retry(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = svc.Retry(context.Background(), "quiet")
	assert.ErrorIs(t, err, model.ErrNotFound)

	records.getErr = errors.New("disk I/O error")
	_, err = svc.Retry(context.Background(), "quiet")
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
}

func TestRetry_FailureReturnsState(t *testing.T) {
	svc, records, _, dispatcher, clock := newDispatchFixture(t)
	seedRecord(t, records, "c1", true, clock.Now())
	dispatcher.setErr(errors.New("HTTP 502"))

	state, err := svc.Retry(context.Background(), "c1")

	assert.ErrorIs(t, err, model.ErrDispatchFailure)
	require.NotNil(t, state)
	assert.Equal(t, model.DispatchFailed, state.Status)
	assert.Equal(t, "HTTP 502", state.LastError)
	assert.Equal(t, 1, state.Attempts)
}

func TestRetryPending_SweepsAgedDispatches(t *testing.T) {
	svc, records, dispatches, dispatcher, clock := newDispatchFixture(t)
	start := clock.Now()

	for i := range 3 {
		seedRecord(t, records, fmt.Sprintf("old%d", i), true, start)
	}
	seedRecord(t, records, "done", true, start)
	require.NoError(t, dispatches.MarkDelivered(context.Background(), "done", start))

	clock.Advance(time.Minute)
	seedRecord(t, records, "fresh", true, clock.Now())

	delivered, failed, err := svc.RetryPending(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	assert.Zero(t, failed)
	assert.Equal(t, int64(3), dispatcher.calls.Load())

	fresh, err := dispatches.Get(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, model.DispatchPending, fresh.Status, "too young for the sweep")
}

func TestRetryPending_CountsFailures(t *testing.T) {
	svc, records, _, dispatcher, clock := newDispatchFixture(t)
	seedRecord(t, records, "a", true, clock.Now())
	seedRecord(t, records, "b", true, clock.Now())
	dispatcher.setErr(errors.New("HTTP 503"))
	clock.Advance(time.Minute)

	delivered, failed, err := svc.RetryPending(context.Background(), 1)

	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Equal(t, 1, failed, "limit bounds the sweep")
}

func TestDeliver_CanceledCallerLeavesPending(t *testing.T) {
	svc, records, dispatches, dispatcher, clock := newDispatchFixture(t)
	rec := seedRecord(t, records, "c1", true, clock.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Deliver(ctx, rec)

	assert.ErrorIs(t, err, model.ErrDispatchFailure)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, dispatcher.calls.Load())
	state, err := dispatches.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, model.DispatchPending, state.Status)

	clock.Advance(time.Minute)
	delivered, _, err := svc.RetryPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}
