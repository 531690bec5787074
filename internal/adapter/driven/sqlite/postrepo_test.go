package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

func TestPostRepo_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepo(db)
	ctx := context.Background()

	post := model.Post{
		URN:         "urn:li:share:1",
		Content:     "Launching our new product",
		LikeCount:   10,
		AuthorInfo:  map[string]string{"name": "Ada"},
		LastUpdated: baseTime,
	}
	require.NoError(t, repo.Upsert(ctx, post))

	post.CommentCount = 4
	post.LastUpdated = baseTime.Add(time.Hour)
	require.NoError(t, repo.Upsert(ctx, post))

	got, err := repo.Get(ctx, "urn:li:share:1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, post, *got)
}

func TestPostRepo_Get_NotFound(t *testing.T) {
	db := setupTestDB(t)

	got, err := NewPostRepo(db).Get(context.Background(), "urn:li:share:404")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostRepo_ListAndRemove(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepo(db)
	ctx := context.Background()

	for _, urn := range []string{"urn:li:share:2", "urn:li:share:1"} {
		require.NoError(t, repo.Upsert(ctx, model.Post{URN: urn, LastUpdated: baseTime}))
	}

	posts, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "urn:li:share:1", posts[0].URN)

	require.NoError(t, repo.Remove(ctx, "urn:li:share:1"))
	assert.ErrorIs(t, repo.Remove(ctx, "urn:li:share:1"), model.ErrNotFound)

	posts, err = repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "urn:li:share:2", posts[0].URN)
}
