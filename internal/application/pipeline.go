package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
	"github.com/ericfisherdev/commentbot/internal/metrics"
)

// Classifier scores comment text. Implementations must be pure.
type Classifier interface {
	Classify(text string) model.SentimentResult
}

// Generator renders a reply for a classified comment. Implementations must
// be deterministic for a given sentiment and comment.
type Generator interface {
	Generate(sentiment model.SentimentResult, comment model.Comment) (model.Response, error)
}

// Pipeline turns an inbound comment into a persisted ProcessedRecord:
// idempotence check, admission control, classification, reply generation,
// create-if-absent persistence and optional dispatch. Nothing durable is
// written before the create-if-absent step, so any earlier failure can be
// retried from scratch.
type Pipeline struct {
	records        driven.RecordStore
	limiter        driven.RateLimiter
	classifier     Classifier
	generator      Generator
	dispatch       *DispatchService
	clock          clockwork.Clock
	storageTimeout time.Duration
	metrics        *metrics.Pipeline
	group          singleflight.Group
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithDispatch enables reply delivery after persistence.
func WithDispatch(s *DispatchService) PipelineOption {
	return func(p *Pipeline) { p.dispatch = s }
}

// WithClock overrides the clock used for ProcessedAt.
func WithClock(clock clockwork.Clock) PipelineOption {
	return func(p *Pipeline) { p.clock = clock }
}

// WithStorageTimeout bounds each store call. Zero leaves only the caller's
// deadline in place.
func WithStorageTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.storageTimeout = d }
}

// WithMetrics records outcomes and sentiment labels.
func WithMetrics(m *metrics.Pipeline) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a Pipeline. The limiter is owned by the caller and may be
// shared across pipelines.
func NewPipeline(
	records driven.RecordStore,
	limiter driven.RateLimiter,
	classifier Classifier,
	generator Generator,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		records:        records,
		limiter:        limiter,
		classifier:     classifier,
		generator:      generator,
		clock:          clockwork.NewRealClock(),
		storageTimeout: DefaultStorageTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type processResult struct {
	record  model.ProcessedRecord
	outcome string
}

// Process handles one comment. Reprocessing an ID that is already persisted
// returns the stored record without classifying, generating or dispatching.
//
// Errors: model.ErrInvalidComment, model.ErrRateLimitExceeded,
// model.ErrStorageUnavailable, the context's error when canceled before
// persistence, and *model.DispatchError (returned alongside the persisted
// record) when the reply could not be delivered.
func (p *Pipeline) Process(ctx context.Context, comment model.Comment) (model.ProcessedRecord, error) {
	res, err := p.run(ctx, comment)
	return res.record, err
}

func (p *Pipeline) run(ctx context.Context, comment model.Comment) (processResult, error) {
	start := p.clock.Now()

	if strings.TrimSpace(comment.ID) == "" {
		p.metrics.ObserveOutcome(metrics.OutcomeInvalid, p.clock.Since(start))
		return processResult{outcome: metrics.OutcomeInvalid}, fmt.Errorf("comment without id: %w", model.ErrInvalidComment)
	}

	res, err := p.runShared(ctx, comment)
	p.metrics.ObserveOutcome(res.outcome, p.clock.Since(start))
	return res, err
}

// runShared collapses concurrent calls for one ID inside this process into a
// single run. The store's create-if-absent still decides across processes.
// Only the caller whose run executed reports it as created; the others see a
// duplicate. A run canceled by another caller's context is redone under this
// caller's own.
func (p *Pipeline) runShared(ctx context.Context, comment model.Comment) (processResult, error) {
	for {
		var leader atomic.Bool
		ch := p.group.DoChan(comment.ID, func() (any, error) {
			leader.Store(true)
			res, err := p.process(ctx, comment)
			return res, err
		})

		var r singleflight.Result
		select {
		case r = <-ch:
		case <-ctx.Done():
			if !leader.Load() {
				return processResult{outcome: metrics.OutcomeCanceled},
					fmt.Errorf("process comment %s: %w", comment.ID, ctx.Err())
			}
			// The run is ours and may already be past persistence.
			r = <-ch
		}

		res, _ := r.Val.(processResult)
		if leader.Load() {
			return res, r.Err
		}

		switch res.outcome {
		case metrics.OutcomeCanceled:
			continue
		case metrics.OutcomeCreated:
			slog.Debug("comment processed by concurrent call", "comment_id", comment.ID)
			return processResult{record: res.record, outcome: metrics.OutcomeDuplicate}, nil
		}
		return res, r.Err
	}
}

func (p *Pipeline) process(ctx context.Context, comment model.Comment) (processResult, error) {
	id := comment.ID

	existing, err := p.get(ctx, id)
	if err != nil {
		return p.fail(err, "get record", id)
	}
	if existing != nil {
		slog.Debug("comment already processed", "comment_id", id)
		return processResult{record: *existing, outcome: metrics.OutcomeDuplicate}, nil
	}

	admitted, err := p.limiter.TryAcquire(ctx)
	if err != nil {
		return p.fail(err, "rate limiter", id)
	}
	if !admitted {
		return processResult{outcome: metrics.OutcomeRateLimited},
			fmt.Errorf("process comment %s: %w", id, model.ErrRateLimitExceeded)
	}

	sentiment := p.classifier.Classify(comment.Text)

	response, err := p.generator.Generate(sentiment, comment)
	if err != nil {
		return processResult{outcome: metrics.OutcomeError}, fmt.Errorf("generate reply for comment %s: %w", id, err)
	}

	if err := ctx.Err(); err != nil {
		return processResult{outcome: metrics.OutcomeCanceled}, fmt.Errorf("process comment %s: %w", id, err)
	}

	now := p.clock.Now().UTC()
	if comment.ReceivedAt.IsZero() {
		comment.ReceivedAt = now
	}

	rec := model.ProcessedRecord{
		Comment:          comment,
		Sentiment:        sentiment,
		Response:         response,
		ProcessedAt:      now,
		AwaitingDispatch: p.dispatch != nil,
	}

	stored, created, err := p.create(ctx, rec)
	if err != nil {
		return p.fail(err, "create record", id)
	}
	if !created {
		slog.Info("comment persisted concurrently", "comment_id", id)
		return processResult{record: stored, outcome: metrics.OutcomeDuplicate}, nil
	}

	p.metrics.ObserveSentiment(string(stored.Sentiment.Label))
	slog.Info("comment processed",
		"comment_id", id,
		"post_urn", comment.PostURN,
		"polarity", sentiment.Polarity,
		"label", string(sentiment.Label),
		"template_id", response.TemplateID,
	)

	if p.dispatch != nil && stored.AwaitingDispatch {
		if err := p.dispatch.Deliver(ctx, stored); err != nil {
			// The record is durable; only the reply needs a retry.
			var dispatchErr *model.DispatchError
			if !errors.As(err, &dispatchErr) {
				err = &model.DispatchError{CommentID: id, Err: err}
			}
			return processResult{record: stored, outcome: metrics.OutcomeCreated}, err
		}
	}

	return processResult{record: stored, outcome: metrics.OutcomeCreated}, nil
}

// fail classifies a store or limiter error. Caller cancellation is reported
// as such; everything else, deadlines included, is storage unavailability.
func (p *Pipeline) fail(err error, op, id string) (processResult, error) {
	if errors.Is(err, context.Canceled) {
		return processResult{outcome: metrics.OutcomeCanceled}, fmt.Errorf("%s for comment %s: %w", op, id, err)
	}
	slog.Error("pipeline storage failure", "op", op, "comment_id", id, "error", err)
	return processResult{outcome: metrics.OutcomeStorage},
		fmt.Errorf("%w: %s for comment %s: %w", model.ErrStorageUnavailable, op, id, err)
}

func (p *Pipeline) get(ctx context.Context, id string) (*model.ProcessedRecord, error) {
	ctx, cancel := p.storageContext(ctx)
	defer cancel()
	return p.records.Get(ctx, id)
}

func (p *Pipeline) create(ctx context.Context, rec model.ProcessedRecord) (model.ProcessedRecord, bool, error) {
	ctx, cancel := p.storageContext(ctx)
	defer cancel()
	return p.records.CreateIfAbsent(ctx, rec)
}

func (p *Pipeline) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.storageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.storageTimeout)
}

// Outcome is the result of processing one comment in a batch. Created is
// set when this call persisted the record, even if its dispatch then failed.
type Outcome struct {
	Comment model.Comment
	Record  model.ProcessedRecord
	Created bool
	Err     error
}

// ProcessBatch runs Process for every comment with at most workers in flight.
// Outcomes are returned in input order; per-comment errors never stop the
// batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, comments []model.Comment, workers int) []Outcome {
	outcomes := make([]Outcome, len(comments))

	var g errgroup.Group
	g.SetLimit(max(workers, 1))

	for i, comment := range comments {
		g.Go(func() error {
			res, err := p.run(ctx, comment)
			outcomes[i] = Outcome{
				Comment: comment,
				Record:  res.record,
				Created: res.outcome == metrics.OutcomeCreated,
				Err:     err,
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
