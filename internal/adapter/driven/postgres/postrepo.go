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
var _ driven.PostStore = (*PostRepo)(nil)

const postColumns = `urn, content, like_count, comment_count, share_count, author_info, last_updated`

// PostRepo is the PostgreSQL implementation of the PostStore port interface.
type PostRepo struct {
	pool *pgxpool.Pool
}

// NewPostRepo creates a PostRepo from the shared pool.
func NewPostRepo(pool *pgxpool.Pool) *PostRepo {
	return &PostRepo{pool: pool}
}

// Upsert adds a watched post or refreshes its engagement snapshot.
func (r *PostRepo) Upsert(ctx context.Context, post model.Post) error {
	const query = `
		INSERT INTO posts (` + postColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (urn) DO UPDATE SET
			content = EXCLUDED.content,
			like_count = EXCLUDED.like_count,
			comment_count = EXCLUDED.comment_count,
			share_count = EXCLUDED.share_count,
			author_info = EXCLUDED.author_info,
			last_updated = EXCLUDED.last_updated
	`

	lastUpdated := post.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now()
	}

	_, err := r.pool.Exec(ctx, query,
		post.URN, post.Content, post.LikeCount, post.CommentCount, post.ShareCount,
		emptyIfNil(post.AuthorInfo), lastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", post.URN, err)
	}
	return nil
}

// Get returns nil, nil if the post is not watched.
func (r *PostRepo) Get(ctx context.Context, urn string) (*model.Post, error) {
	post, err := scanPost(r.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE urn = $1`, urn))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", urn, err)
	}
	return post, nil
}

// Remove stops watching a post.
func (r *PostRepo) Remove(ctx context.Context, urn string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE urn = $1`, urn)
	if err != nil {
		return fmt.Errorf("remove post %s: %w", urn, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("remove post %s: %w", urn, model.ErrNotFound)
	}
	return nil
}

// ListAll returns all watched posts ordered by URN.
func (r *PostRepo) ListAll(ctx context.Context) ([]model.Post, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+postColumns+` FROM posts ORDER BY urn`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}

func scanPost(row pgx.Row) (*model.Post, error) {
	var post model.Post
	err := row.Scan(&post.URN, &post.Content, &post.LikeCount, &post.CommentCount, &post.ShareCount,
		&post.AuthorInfo, &post.LastUpdated)
	if err != nil {
		return nil, err
	}

	post.AuthorInfo = nilIfEmpty(post.AuthorInfo)
	post.LastUpdated = post.LastUpdated.UTC()
	return &post, nil
}
