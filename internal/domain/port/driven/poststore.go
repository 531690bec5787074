package driven

import (
	"context"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

// PostStore defines the driven port for the watched-post list.
type PostStore interface {
	Upsert(ctx context.Context, post model.Post) error
	// Get returns nil, nil when the post is not watched.
	Get(ctx context.Context, urn string) (*model.Post, error)
	Remove(ctx context.Context, urn string) error
	ListAll(ctx context.Context) ([]model.Post, error)
}
