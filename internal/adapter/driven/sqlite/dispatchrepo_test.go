package sqlite

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

func seedAwaiting(t *testing.T, db *DB, id string, at time.Time) {
	t.Helper()
	rec := makeRecord(id, "urn:li:share:1", model.SentimentPositive, at)
	rec.AwaitingDispatch = true
	_, created, err := NewRecordRepo(db).CreateIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, created)
}

func TestDispatchRepo_ClaimLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDispatchRepo(db)
	ctx := context.Background()
	seedAwaiting(t, db, "c1", baseTime)

	claimed, err := repo.Claim(ctx, "c1", baseTime, baseTime.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.Claim(ctx, "c1", baseTime.Add(time.Second), baseTime.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, claimed, "live claim blocks a second worker")

	require.NoError(t, repo.MarkFailed(ctx, "c1", "HTTP 503", baseTime.Add(2*time.Second)))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.DispatchFailed, got.Status)
	assert.Equal(t, "HTTP 503", got.LastError)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, baseTime, got.ClaimedAt)

	claimed, err = repo.Claim(ctx, "c1", baseTime.Add(time.Minute), baseTime)
	require.NoError(t, err)
	assert.True(t, claimed, "failed dispatches are claimable")

	delivered := baseTime.Add(time.Minute + time.Second)
	require.NoError(t, repo.MarkDelivered(ctx, "c1", delivered))

	got, err = repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.DispatchDelivered, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Empty(t, got.LastError)
	assert.Equal(t, delivered, got.DeliveredAt)

	claimed, err = repo.Claim(ctx, "c1", baseTime.Add(time.Hour), baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, claimed, "delivered dispatches are never claimed again")
}

func TestDispatchRepo_StaleClaim(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDispatchRepo(db)
	ctx := context.Background()
	seedAwaiting(t, db, "c1", baseTime)

	_, err := repo.Claim(ctx, "c1", baseTime, baseTime.Add(-time.Minute))
	require.NoError(t, err)

	later := baseTime.Add(5 * time.Minute)
	claimed, err := repo.Claim(ctx, "c1", later, later.Add(-2*time.Minute))

	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestDispatchRepo_ClaimConcurrent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDispatchRepo(db)
	seedAwaiting(t, db, "c1", baseTime)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Claim(context.Background(), "c1", baseTime, baseTime.Add(-time.Minute))
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestDispatchRepo_MissingRow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDispatchRepo(db)
	ctx := context.Background()

	claimed, err := repo.Claim(ctx, "missing", baseTime, baseTime)
	require.NoError(t, err)
	assert.False(t, claimed)

	assert.ErrorIs(t, repo.MarkDelivered(ctx, "missing", baseTime), model.ErrNotFound)

	got, err := repo.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDispatchRepo_ListRetryable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDispatchRepo(db)
	ctx := context.Background()

	seedAwaiting(t, db, "old-pending", baseTime)
	seedAwaiting(t, db, "old-failed", baseTime.Add(time.Second))
	seedAwaiting(t, db, "delivered", baseTime)
	seedAwaiting(t, db, "fresh", baseTime.Add(time.Hour))
	seedAwaiting(t, db, "abandoned", baseTime)

	_, err := repo.Claim(ctx, "old-failed", baseTime.Add(time.Second), baseTime)
	require.NoError(t, err)
	// A claim whose worker died mid-delivery may already be posted; only a
	// manual retry may take it over.
	_, err = repo.Claim(ctx, "abandoned", baseTime, baseTime)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, "old-failed", "boom", baseTime.Add(2*time.Second)))
	require.NoError(t, repo.MarkDelivered(ctx, "delivered", baseTime))

	ids, err := repo.ListRetryable(ctx, baseTime.Add(time.Minute), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-pending", "old-failed"}, ids)

	ids, err = repo.ListRetryable(ctx, baseTime.Add(time.Minute), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-pending"}, ids)
}
