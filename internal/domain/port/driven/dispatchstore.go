package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

// DispatchStore tracks delivery of replies for processed records.
type DispatchStore interface {
	// Claim atomically moves a pending or failed dispatch (or an in-flight one
	// claimed before staleBefore) to in_flight. It returns false when another
	// worker holds the claim or the reply was already delivered.
	Claim(ctx context.Context, commentID string, now, staleBefore time.Time) (bool, error)
	MarkDelivered(ctx context.Context, commentID string, at time.Time) error
	MarkFailed(ctx context.Context, commentID string, reason string, at time.Time) error
	// Get returns nil, nil when no dispatch row exists.
	Get(ctx context.Context, commentID string) (*model.Dispatch, error)
	// ListRetryable returns comment IDs whose dispatch is pending or failed and
	// was last updated before the given time, oldest first. In-flight claims
	// are never listed, even stale ones: the reply may already be posted.
	ListRetryable(ctx context.Context, before time.Time, limit int) ([]string, error)
}
