// Package httphandler is the JSON API driving adapter.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/commentbot/internal/application"
	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	maxBodyBytes     = 1 << 20
)

// CommentProcessor runs one comment through the processing pipeline.
type CommentProcessor interface {
	Process(ctx context.Context, comment model.Comment) (model.ProcessedRecord, error)
}

// DispatchRetrier re-attempts reply delivery without reprocessing.
type DispatchRetrier interface {
	Retry(ctx context.Context, commentID string) (*model.Dispatch, error)
}

// Poller triggers an out-of-schedule poll.
type Poller interface {
	Refresh(ctx context.Context, postURN string) (application.CycleResult, error)
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) application.HealthSummary
}

// Deps are the Handler's collaborators. Dispatches, Retrier, Poller and
// Checker are optional; their routes answer 409 (or a static ok for health)
// when unset.
type Deps struct {
	Pipeline   CommentProcessor
	Records    driven.RecordStore
	Posts      driven.PostStore
	Dispatches driven.DispatchStore
	Retrier    DispatchRetrier
	Poller     Poller
	Checker    HealthChecker
	Logger     *slog.Logger
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	Deps
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handler{Deps: deps}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request ID, logging, recovery and ingress throttling middleware.
// metricsHandler and ingress may be nil.
func NewServeMux(h *Handler, metricsHandler http.Handler, ingress *IngressLimiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/posts", h.ListPosts)
	mux.HandleFunc("POST /api/v1/posts", h.AddPost)
	mux.HandleFunc("DELETE /api/v1/posts/{urn...}", h.RemovePost)
	mux.HandleFunc("POST /api/v1/comments", h.ProcessComment)
	mux.HandleFunc("GET /api/v1/records", h.ListRecords)
	mux.HandleFunc("GET /api/v1/records/{id}", h.GetRecord)
	mux.HandleFunc("POST /api/v1/records/{id}/dispatch", h.RetryDispatch)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/poll", h.Poll)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(h.Logger, mux)
	wrapped = ingressMiddleware(ingress, wrapped)
	wrapped = loggingMiddleware(h.Logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Health reports dependency status. A degraded dependency answers 503 so
// container probes fail.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		writeJSON(w, http.StatusOK, application.HealthSummary{
			Status:     application.HealthOK,
			Components: []application.ComponentHealth{},
			CheckedAt:  time.Now().UTC(),
		})
		return
	}

	summary := h.Checker.Check(r.Context())
	status := http.StatusOK
	if summary.Status != application.HealthOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, summary)
}

// ListPosts returns all watched posts.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.Posts.ListAll(r.Context())
	if err != nil {
		h.Logger.Error("failed to list posts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]PostResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddPost adds or updates a watched post and triggers an async refresh.
func (h *Handler) AddPost(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.URN = strings.TrimSpace(req.URN)
	if req.URN == "" {
		writeError(w, http.StatusBadRequest, "urn is required")
		return
	}

	post := model.Post{
		URN:          req.URN,
		Content:      req.Content,
		LikeCount:    req.LikeCount,
		CommentCount: req.CommentCount,
		ShareCount:   req.ShareCount,
		AuthorInfo:   req.AuthorInfo,
		LastUpdated:  time.Now().UTC(),
	}

	if err := h.Posts.Upsert(r.Context(), post); err != nil {
		h.Logger.Error("failed to upsert post", "post_urn", post.URN, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Fire-and-forget async refresh with background context since the HTTP
	// request context will be cancelled after the response is sent.
	if h.Poller != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := h.Poller.Refresh(ctx, post.URN); err != nil {
				h.Logger.Error("async post refresh failed", "post_urn", post.URN, "error", err)
			}
		}()
	}

	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

// RemovePost stops watching a post. Processed records are kept.
func (h *Handler) RemovePost(w http.ResponseWriter, r *http.Request) {
	urn := r.PathValue("urn")

	if err := h.Posts.Remove(r.Context(), urn); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		h.Logger.Error("failed to remove post", "post_urn", urn, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ProcessComment runs one comment through the pipeline. Reprocessing a known
// ID returns the stored record unchanged.
func (h *Handler) ProcessComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.Pipeline.Process(r.Context(), req.toModel())
	if err != nil {
		var dispatchErr *model.DispatchError
		if errors.As(err, &dispatchErr) {
			resp := toRecordResponse(rec)
			writeJSON(w, http.StatusBadGateway, dispatchErrorResponse{Error: err.Error(), Record: &resp})
			return
		}
		h.writeDomainError(w, r, err, "process comment")
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

// ListRecords returns processed records, newest first, filtered by the
// optional label, post and limit query parameters.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := model.RecordFilter{
		Label:   model.SentimentLabel(q.Get("label")),
		PostURN: q.Get("post"),
		Limit:   defaultListLimit,
	}
	if filter.Label != "" && !filter.Label.Valid() {
		writeError(w, http.StatusBadRequest, "invalid label: expected positive, neutral or negative")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = min(n, maxListLimit)
	}

	records, err := h.Records.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("failed to list records", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toRecordResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetRecord returns one processed record with its delivery state.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := h.Records.Get(r.Context(), id)
	if err != nil {
		h.Logger.Error("failed to get record", "comment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}

	resp := toRecordResponse(*rec)
	if h.Dispatches != nil && rec.AwaitingDispatch {
		d, err := h.Dispatches.Get(r.Context(), id)
		if err != nil {
			h.Logger.Warn("failed to load dispatch state", "comment_id", id, "error", err)
		} else if d != nil {
			resp.Dispatch = toDispatchResponse(*d)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// RetryDispatch re-attempts delivery of a stored reply.
func (h *Handler) RetryDispatch(w http.ResponseWriter, r *http.Request) {
	if h.Retrier == nil {
		writeError(w, http.StatusConflict, "reply dispatch is disabled")
		return
	}

	id := r.PathValue("id")
	state, err := h.Retrier.Retry(r.Context(), id)
	if err != nil {
		var dispatchErr *model.DispatchError
		if errors.As(err, &dispatchErr) {
			var body any = errorResponse{Error: err.Error()}
			if state != nil {
				body = struct {
					Error    string            `json:"error"`
					Dispatch *DispatchResponse `json:"dispatch"`
				}{err.Error(), toDispatchResponse(*state)}
			}
			writeJSON(w, http.StatusBadGateway, body)
			return
		}
		h.writeDomainError(w, r, err, "retry dispatch")
		return
	}

	writeJSON(w, http.StatusOK, toDispatchResponse(*state))
}

// Stats returns the number of processed records per sentiment label.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Records.CountByLabel(r.Context())
	if err != nil {
		h.Logger.Error("failed to count records", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toStatsResponse(counts))
}

// Poll runs an immediate poll of one post (?post=) or of every watched post.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	if h.Poller == nil {
		writeError(w, http.StatusConflict, "no comment source configured")
		return
	}

	res, err := h.Poller.Refresh(r.Context(), r.URL.Query().Get("post"))
	if err != nil {
		h.writeDomainError(w, r, err, "poll")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// writeDomainError maps domain sentinels to status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, model.ErrInvalidComment):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrRateLimitExceeded):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, model.ErrStorageUnavailable):
		h.Logger.Warn(op+" failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		h.Logger.Error(op+" failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
