// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
)

// Poll defaults.
const (
	DefaultPollInterval = 5 * time.Minute
	DefaultPollWorkers  = 4
	DefaultRetryBatch   = 50
)

// refreshRequest represents a manual refresh trigger. An empty postURN
// refreshes every watched post.
type refreshRequest struct {
	postURN string
	done    chan refreshResult
}

type refreshResult struct {
	cycle CycleResult
	err   error
}

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	ID          string        `json:"id"`
	Posts       int           `json:"posts"`
	Fetched     int           `json:"fetched"`
	Created     int           `json:"created"`
	Duplicates  int           `json:"duplicates"`
	RateLimited int           `json:"rate_limited"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration_ns"`
}

// PollService periodically fetches comments for every watched post and runs
// them through the pipeline. The comment source is at-least-once; the
// pipeline's idempotence turns re-fetched comments into no-ops. Scheduled
// cycles skip posts whose activity tier says they are not yet due.
type PollService struct {
	source     driven.CommentSource
	posts      driven.PostStore
	pipeline   *Pipeline
	dispatch   *DispatchService
	clock      clockwork.Clock
	interval   time.Duration
	workers    int
	retryBatch int
	refreshCh  chan refreshRequest

	mu        sync.Mutex
	schedules map[string]ScheduleInfo
}

// PollOption configures a PollService.
type PollOption func(*PollService)

// WithPollWorkers bounds concurrent Process calls per post.
func WithPollWorkers(n int) PollOption {
	return func(s *PollService) { s.workers = n }
}

// WithPollClock overrides the clock driving the ticker.
func WithPollClock(clock clockwork.Clock) PollOption {
	return func(s *PollService) { s.clock = clock }
}

// WithRetrySweep enables a dispatch retry sweep after every scheduled cycle.
func WithRetrySweep(d *DispatchService, batch int) PollOption {
	return func(s *PollService) {
		s.dispatch = d
		s.retryBatch = batch
	}
}

// NewPollService creates a new PollService with all required dependencies.
func NewPollService(
	source driven.CommentSource,
	posts driven.PostStore,
	pipeline *Pipeline,
	interval time.Duration,
	opts ...PollOption,
) *PollService {
	s := &PollService{
		source:     source,
		posts:      posts,
		pipeline:   pipeline,
		clock:      clockwork.NewRealClock(),
		interval:   interval,
		workers:    DefaultPollWorkers,
		retryBatch: DefaultRetryBatch,
		refreshCh:  make(chan refreshRequest),
		schedules:  make(map[string]ScheduleInfo),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = DefaultPollInterval
	}
	return s
}

// Start begins the polling loop. It runs an immediate poll, then polls on the
// configured interval. It also listens for manual refresh requests. Start
// blocks until the context is canceled.
func (s *PollService) Start(ctx context.Context) {
	s.cycle(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poll service stopped")
			return
		case <-ticker.Chan():
			s.cycle(ctx)
		case req := <-s.refreshCh:
			res, err := s.handleRefresh(ctx, req.postURN)
			req.done <- refreshResult{cycle: res, err: err}
		}
	}
}

// Refresh triggers a poll outside the schedule and blocks until it
// completes or the context is canceled. An empty postURN polls every watched
// post; otherwise the post must be watched.
func (s *PollService) Refresh(ctx context.Context, postURN string) (CycleResult, error) {
	done := make(chan refreshResult, 1)
	req := refreshRequest{postURN: postURN, done: done}

	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}

	select {
	case res := <-done:
		return res.cycle, res.err
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}
}

// Schedule returns the adaptive schedule of a post. The second result is
// false until the post has been polled once.
func (s *PollService) Schedule(postURN string) (ScheduleInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.schedules[postURN]
	return info, ok
}

// cycle runs one scheduled poll of the due posts followed by the retry sweep.
func (s *PollService) cycle(ctx context.Context) {
	if _, err := s.PollDue(ctx); err != nil {
		slog.Error("poll cycle failed", "error", err)
	}

	if s.dispatch == nil || ctx.Err() != nil {
		return
	}
	if _, _, err := s.dispatch.RetryPending(ctx, s.retryBatch); err != nil {
		slog.Error("dispatch retry sweep failed", "error", err)
	}
}

func (s *PollService) handleRefresh(ctx context.Context, postURN string) (CycleResult, error) {
	if postURN == "" {
		return s.PollAll(ctx)
	}

	post, err := s.posts.Get(ctx, postURN)
	if err != nil {
		return CycleResult{}, fmt.Errorf("%w: get post %s: %w", model.ErrStorageUnavailable, postURN, err)
	}
	if post == nil {
		return CycleResult{}, fmt.Errorf("post %s: %w", postURN, model.ErrNotFound)
	}

	res := s.newCycle()
	start := s.clock.Now()
	res.Posts = 1
	err = s.pollPost(ctx, *post, &res)
	res.Duration = s.clock.Since(start)

	slog.Info("manual post refresh complete", "cycle_id", res.ID, "post_urn", postURN,
		"fetched", res.Fetched, "created", res.Created, "error", err)
	return res, err
}

// PollAll polls every watched post once regardless of schedule. Per-post
// fetch failures are logged and counted; only a failure to list posts is
// returned.
func (s *PollService) PollAll(ctx context.Context) (CycleResult, error) {
	return s.poll(ctx, false)
}

// PollDue polls the watched posts whose schedule is due.
func (s *PollService) PollDue(ctx context.Context) (CycleResult, error) {
	return s.poll(ctx, true)
}

func (s *PollService) poll(ctx context.Context, dueOnly bool) (CycleResult, error) {
	res := s.newCycle()
	start := s.clock.Now()

	posts, err := s.posts.ListAll(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: list posts: %w", model.ErrStorageUnavailable, err)
	}
	posts = s.selectPosts(posts, start, dueOnly)
	res.Posts = len(posts)

	var pollErrors int
	for _, post := range posts {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		if err := s.pollPost(ctx, post, &res); err != nil {
			slog.Error("post poll failed", "cycle_id", res.ID, "post_urn", post.URN, "error", err)
			pollErrors++
		}
	}

	res.Duration = s.clock.Since(start)
	slog.Info("poll cycle complete",
		"cycle_id", res.ID,
		"posts", res.Posts,
		"errors", pollErrors,
		"fetched", res.Fetched,
		"created", res.Created,
		"duplicates", res.Duplicates,
		"rate_limited", res.RateLimited,
		"failed", res.Failed,
		"duration", res.Duration.Round(time.Millisecond),
	)

	return res, nil
}

// selectPosts drops schedules of unwatched posts and, when dueOnly is set,
// filters out posts not yet due. Unscheduled posts are always due.
func (s *PollService) selectPosts(posts []model.Post, now time.Time, dueOnly bool) []model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()

	watched := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		watched[p.URN] = struct{}{}
	}
	for urn := range s.schedules {
		if _, ok := watched[urn]; !ok {
			delete(s.schedules, urn)
		}
	}

	if !dueOnly {
		return posts
	}

	due := posts[:0]
	for _, p := range posts {
		info, ok := s.schedules[p.URN]
		if !ok || info.due(now) {
			due = append(due, p)
		}
	}
	return due
}

// pollPost fetches one post's comments and processes them.
func (s *PollService) pollPost(ctx context.Context, post model.Post, res *CycleResult) error {
	comments, err := s.source.FetchComments(ctx, post.URN)
	if err != nil {
		return fmt.Errorf("fetch comments for %s: %w", post.URN, err)
	}
	res.Fetched += len(comments)

	for i := range comments {
		if comments[i].PostURN == "" {
			comments[i].PostURN = post.URN
		}
	}

	outcomes := s.pipeline.ProcessBatch(ctx, comments, s.workers)
	for _, o := range outcomes {
		switch {
		case o.Created:
			// A failed dispatch is left to the retry sweep.
			res.Created++
		case o.Err == nil:
			res.Duplicates++
		case errors.Is(o.Err, model.ErrRateLimitExceeded):
			res.RateLimited++
		default:
			res.Failed++
			slog.Warn("comment processing failed", "cycle_id", res.ID, "comment_id", o.Comment.ID, "error", o.Err)
		}
	}

	now := s.clock.Now().UTC()
	s.reschedule(post.URN, outcomes, now)

	post.CommentCount = len(comments)
	post.LastUpdated = now
	if err := s.posts.Upsert(ctx, post); err != nil {
		return fmt.Errorf("update post %s: %w", post.URN, err)
	}

	return nil
}

func (s *PollService) reschedule(postURN string, outcomes []Outcome, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.schedules[postURN]
	next := nextSchedule(prev, outcomes, now, s.interval)
	if next.Tier != prev.Tier || prev.LastPolledAt.IsZero() {
		slog.Debug("post schedule updated", "post_urn", postURN, "tier", next.Tier.String(), "next_poll_at", next.NextPollAt)
	}
	s.schedules[postURN] = next
}

func (s *PollService) newCycle() CycleResult {
	return CycleResult{ID: uuid.NewString()}
}
