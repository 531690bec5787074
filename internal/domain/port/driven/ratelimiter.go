package driven

import "context"

// RateLimiter bounds outbound processing actions per time window. A false
// result means the attempt was denied and not counted. An error means the
// limiter backend could not be reached.
type RateLimiter interface {
	TryAcquire(ctx context.Context) (bool, error)
}
