package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
	"github.com/ericfisherdev/commentbot/internal/metrics"
)

// Dispatch defaults.
const (
	DefaultClaimTTL       = 2 * time.Minute
	DefaultRetryMinAge    = 30 * time.Second
	DefaultStorageTimeout = 5 * time.Second
)

// DispatchService delivers persisted replies to the originating platform at
// most once per comment ID. Delivery state is claimed in the DispatchStore
// before the sink is called, so concurrent workers (or replicas) never post
// the same reply twice while a claim is live.
type DispatchService struct {
	dispatcher     driven.ResponseDispatcher
	records        driven.RecordStore
	dispatches     driven.DispatchStore
	clock          clockwork.Clock
	claimTTL       time.Duration
	retryMinAge    time.Duration
	storageTimeout time.Duration
	metrics        *metrics.Pipeline
	group          singleflight.Group
}

// DispatchOption configures a DispatchService.
type DispatchOption func(*DispatchService)

// WithDispatchClock overrides the clock used for claims and timestamps.
func WithDispatchClock(clock clockwork.Clock) DispatchOption {
	return func(s *DispatchService) { s.clock = clock }
}

// WithClaimTTL sets how long an in-flight claim is honored before another
// worker may take it over.
func WithClaimTTL(ttl time.Duration) DispatchOption {
	return func(s *DispatchService) { s.claimTTL = ttl }
}

// WithRetryMinAge sets how long a pending or failed dispatch must sit before
// RetryPending picks it up.
func WithRetryMinAge(age time.Duration) DispatchOption {
	return func(s *DispatchService) { s.retryMinAge = age }
}

// WithDispatchMetrics records delivery results.
func WithDispatchMetrics(m *metrics.Pipeline) DispatchOption {
	return func(s *DispatchService) { s.metrics = m }
}

// NewDispatchService creates a DispatchService with all required dependencies.
func NewDispatchService(
	dispatcher driven.ResponseDispatcher,
	records driven.RecordStore,
	dispatches driven.DispatchStore,
	opts ...DispatchOption,
) *DispatchService {
	s := &DispatchService{
		dispatcher:     dispatcher,
		records:        records,
		dispatches:     dispatches,
		clock:          clockwork.NewRealClock(),
		claimTTL:       DefaultClaimTTL,
		retryMinAge:    DefaultRetryMinAge,
		storageTimeout: DefaultStorageTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deliver sends the reply for rec unless it was already delivered or another
// worker holds the claim. Every failure is a *model.DispatchError: the record
// is already durable, so only delivery is left to retry. A caller that gave up
// before the claim leaves the dispatch pending for the retry sweep.
func (s *DispatchService) Deliver(ctx context.Context, rec model.ProcessedRecord) error {
	id := rec.Comment.ID

	if err := ctx.Err(); err != nil {
		return &model.DispatchError{CommentID: id, Err: err}
	}

	claimed, err := s.claim(ctx, id, s.clock.Now().UTC())
	if err != nil {
		slog.Error("dispatch claim failed", "comment_id", id, "error", err)
		return &model.DispatchError{CommentID: id, Err: err}
	}
	if !claimed {
		s.metrics.ObserveDispatch(metrics.DispatchSkipped)
		slog.Debug("dispatch not claimed", "comment_id", id)
		return nil
	}

	if err := s.dispatcher.Dispatch(ctx, rec); err != nil {
		s.metrics.ObserveDispatch(metrics.DispatchFailed)
		slog.Warn("reply dispatch failed", "comment_id", id, "post_urn", rec.Comment.PostURN, "error", err)

		storeCtx, cancel := s.detachedContext(ctx)
		defer cancel()
		if markErr := s.dispatches.MarkFailed(storeCtx, id, err.Error(), s.clock.Now().UTC()); markErr != nil {
			slog.Error("record dispatch failure failed", "comment_id", id, "error", markErr)
		}

		return &model.DispatchError{CommentID: id, Err: err}
	}

	s.metrics.ObserveDispatch(metrics.DispatchDelivered)

	// The reply is already out; persist that fact even if the caller gave up.
	// If that write fails the claim stays in_flight, which the retry sweep
	// never picks up, so the reply is not posted twice.
	storeCtx, cancel := s.detachedContext(ctx)
	defer cancel()
	if err := s.dispatches.MarkDelivered(storeCtx, id, s.clock.Now().UTC()); err != nil {
		slog.Error("reply dispatched but delivery not recorded", "comment_id", id, "error", err)
		return nil
	}

	slog.Info("reply dispatched", "comment_id", id, "post_urn", rec.Comment.PostURN, "template_id", rec.Response.TemplateID)
	return nil
}

// Retry re-attempts delivery for one comment without reprocessing it. It
// returns the dispatch state after the attempt.
func (s *DispatchService) Retry(ctx context.Context, commentID string) (*model.Dispatch, error) {
	v, err, _ := s.group.Do(commentID, func() (any, error) {
		storeCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
		rec, err := s.records.Get(storeCtx, commentID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: get record %s: %w", model.ErrStorageUnavailable, commentID, err)
		}
		if rec == nil {
			return nil, fmt.Errorf("record %s: %w", commentID, model.ErrNotFound)
		}
		if !rec.AwaitingDispatch {
			return nil, fmt.Errorf("record %s has no queued reply: %w", commentID, model.ErrNotFound)
		}

		deliverErr := s.Deliver(ctx, *rec)

		storeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.storageTimeout)
		defer cancel()
		state, err := s.dispatches.Get(storeCtx, commentID)
		if err != nil {
			return nil, errors.Join(deliverErr, fmt.Errorf("%w: get dispatch %s: %w", model.ErrStorageUnavailable, commentID, err))
		}
		return state, deliverErr
	})

	state, _ := v.(*model.Dispatch)
	return state, err
}

// RetryPending sweeps up to limit dispatches that are pending or failed and
// have not been touched for the configured minimum age. It returns how many
// were delivered and how many failed again.
func (s *DispatchService) RetryPending(ctx context.Context, limit int) (delivered, failed int, err error) {
	before := s.clock.Now().UTC().Add(-s.retryMinAge)

	storeCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	ids, err := s.dispatches.ListRetryable(storeCtx, before, limit)
	cancel()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: list retryable dispatches: %w", model.ErrStorageUnavailable, err)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return delivered, failed, ctx.Err()
		}

		state, err := s.Retry(ctx, id)
		switch {
		case err == nil && state != nil && state.Status == model.DispatchDelivered:
			delivered++
		case errors.Is(err, model.ErrDispatchFailure):
			failed++
		case err != nil:
			slog.Error("dispatch retry failed", "comment_id", id, "error", err)
			failed++
		}
	}

	if len(ids) > 0 {
		slog.Info("dispatch retry sweep complete", "candidates", len(ids), "delivered", delivered, "failed", failed)
	}

	return delivered, failed, nil
}

// claim runs detached from the caller so a cancellation cannot leave the
// claim half-applied.
func (s *DispatchService) claim(ctx context.Context, id string, now time.Time) (bool, error) {
	storeCtx, cancel := s.detachedContext(ctx)
	defer cancel()

	claimed, err := s.dispatches.Claim(storeCtx, id, now, now.Add(-s.claimTTL))
	if err != nil {
		return false, fmt.Errorf("claim dispatch %s: %w", id, err)
	}
	return claimed, nil
}

func (s *DispatchService) detachedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.storageTimeout)
}
