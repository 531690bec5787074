package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commentbot/internal/config"
	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

func TestOpenStores_SQLite(t *testing.T) {
	cfg := &config.Config{DBDriver: config.DriverSQLite, DBPath: filepath.Join(t.TempDir(), "bot.db")}

	stores, err := OpenStores(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(stores.Close)

	ctx := context.Background()
	require.NoError(t, stores.Ping(ctx))

	require.NoError(t, stores.Posts.Upsert(ctx, model.Post{URN: "urn:li:activity:1", LastUpdated: time.Now().UTC()}))
	posts, err := stores.Posts.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	_, err := OpenStores(context.Background(), &config.Config{DBDriver: "mysql"})
	assert.Error(t, err)
}

func TestNewLimiter_Memory(t *testing.T) {
	cfg := &config.Config{RateLimitWindow: time.Minute, RateLimitMax: 1}

	l, err := NewLimiter(context.Background(), cfg, clockwork.NewFakeClock())
	require.NoError(t, err)
	t.Cleanup(l.Close)

	ok, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, l.Ping(context.Background()))
}

func TestNewLimiter_BadRedisURL(t *testing.T) {
	cfg := &config.Config{RateLimitWindow: time.Minute, RateLimitMax: 1, RedisURL: "not a url"}

	_, err := NewLimiter(context.Background(), cfg, clockwork.NewFakeClock())
	assert.Error(t, err)
}

func TestNewGenerator(t *testing.T) {
	g, err := NewGenerator(&config.Config{})
	require.NoError(t, err)
	assert.NotEmpty(t, g.Candidates(model.SentimentPositive))

	_, err = NewGenerator(&config.Config{Templates: []model.Template{{ID: "only", Label: model.SentimentPositive, Text: "hi"}}})
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
