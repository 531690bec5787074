package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PostStore = (*PostRepo)(nil)

// PostRepo is the SQLite implementation of the PostStore port interface.
type PostRepo struct {
	db *DB
}

// NewPostRepo creates a new PostRepo backed by the given DB.
func NewPostRepo(db *DB) *PostRepo {
	return &PostRepo{db: db}
}

// Upsert adds a watched post or refreshes its engagement snapshot.
func (r *PostRepo) Upsert(ctx context.Context, post model.Post) error {
	const query = `
		INSERT INTO posts (urn, content, like_count, comment_count, share_count, author_info, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(urn) DO UPDATE SET
			content = excluded.content,
			like_count = excluded.like_count,
			comment_count = excluded.comment_count,
			share_count = excluded.share_count,
			author_info = excluded.author_info,
			last_updated = excluded.last_updated
	`

	authorInfo, err := marshalMap(post.AuthorInfo)
	if err != nil {
		return fmt.Errorf("marshal author info: %w", err)
	}

	lastUpdated := post.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now()
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		post.URN, post.Content, post.LikeCount, post.CommentCount, post.ShareCount,
		authorInfo, formatTime(lastUpdated),
	)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", post.URN, err)
	}

	return nil
}

// Get retrieves a watched post by URN. Returns nil, nil if it is not watched.
func (r *PostRepo) Get(ctx context.Context, urn string) (*model.Post, error) {
	const query = `
		SELECT urn, content, like_count, comment_count, share_count, author_info, last_updated
		FROM posts WHERE urn = ?
	`

	post, err := scanPost(r.db.Reader.QueryRowContext(ctx, query, urn))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", urn, err)
	}

	return post, nil
}

// Remove stops watching a post. Processed records for it are kept.
func (r *PostRepo) Remove(ctx context.Context, urn string) error {
	const query = `DELETE FROM posts WHERE urn = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, urn)
	if err != nil {
		return fmt.Errorf("remove post %s: %w", urn, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("remove post %s: %w", urn, model.ErrNotFound)
	}

	return nil
}

// ListAll returns all watched posts ordered by URN.
func (r *PostRepo) ListAll(ctx context.Context) ([]model.Post, error) {
	const query = `
		SELECT urn, content, like_count, comment_count, share_count, author_info, last_updated
		FROM posts ORDER BY urn
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
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

func scanPost(s scanner) (*model.Post, error) {
	var post model.Post
	var authorInfo, lastUpdated string

	err := s.Scan(&post.URN, &post.Content, &post.LikeCount, &post.CommentCount, &post.ShareCount,
		&authorInfo, &lastUpdated)
	if err != nil {
		return nil, err
	}

	if post.AuthorInfo, err = unmarshalMap(authorInfo); err != nil {
		return nil, fmt.Errorf("unmarshal author info: %w", err)
	}

	post.LastUpdated, err = parseTime(lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("parse last_updated: %w", err)
	}

	return &post, nil
}
