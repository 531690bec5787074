package driven

import (
	"context"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

// CommentSource supplies comments for a watched post. Delivery is at least
// once: the same comment may be returned on every poll.
type CommentSource interface {
	FetchComments(ctx context.Context, postURN string) ([]model.Comment, error)
}

// ResponseDispatcher delivers a generated reply back to the originating
// platform.
type ResponseDispatcher interface {
	Dispatch(ctx context.Context, rec model.ProcessedRecord) error
}
