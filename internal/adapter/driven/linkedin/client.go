// Package linkedin implements the CommentSource and ResponseDispatcher ports
// against the LinkedIn social actions REST API.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/sony/gobreaker"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
	"github.com/ericfisherdev/commentbot/internal/textutil"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.CommentSource      = (*Client)(nil)
	_ driven.ResponseDispatcher = (*Client)(nil)
)

const (
	// DefaultBaseURL is the LinkedIn versioned REST API root.
	DefaultBaseURL = "https://api.linkedin.com/rest"
	apiVersion     = "202405"
	pageSize       = 100
	// maxPages bounds pagination for a single post per poll.
	maxPages = 50
)

// ErrCircuitOpen is returned while the breaker rejects calls after repeated
// upstream failures.
var ErrCircuitOpen = errors.New("linkedin: circuit open")

// APIError is a non-2xx response from the LinkedIn API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("linkedin api: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the LinkedIn REST API with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. gobreaker (fails fast while LinkedIn is returning 5xx or timing out)
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	actor   string
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a LinkedIn client authenticated with an OAuth access
// token. actor is the URN replies are posted as, e.g. "urn:li:organization:1".
func NewClient(token, actor, baseURL string) *Client {
	httpClient := &http.Client{
		Transport: httpcache.NewMemoryCacheTransport(),
		Timeout:   30 * time.Second,
	}
	return NewClientWithHTTPClient(httpClient, baseURL, token, actor)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. Tests use it to inject an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token, actor string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "linkedin",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors are the caller's problem, not an outage.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		actor:   actor,
		breaker: breaker,
	}
}

// commentsPage mirrors the socialActions comments collection response.
type commentsPage struct {
	Elements []commentJSON `json:"elements"`
	Paging   struct {
		Start int `json:"start"`
		Count int `json:"count"`
		Total int `json:"total"`
	} `json:"paging"`
}

type commentJSON struct {
	URN     string `json:"$URN"`
	ID      string `json:"id"`
	Actor   string `json:"actor"`
	Object  string `json:"object"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	Created struct {
		Time int64 `json:"time"`
	} `json:"created"`
	ParentComment string `json:"parentComment,omitempty"`
}

// FetchComments returns every top-level comment on the post. Comments the
// configured actor wrote itself are skipped so the bot never answers its own
// replies.
func (c *Client) FetchComments(ctx context.Context, postURN string) ([]model.Comment, error) {
	var comments []model.Comment

	start := 0
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("start", strconv.Itoa(start))
		q.Set("count", strconv.Itoa(pageSize))

		var body commentsPage
		if err := c.do(ctx, http.MethodGet, c.commentsURL(postURN)+"?"+q.Encode(), nil, &body); err != nil {
			return nil, fmt.Errorf("listing comments for %s (start %d): %w", postURN, start, err)
		}

		for _, el := range body.Elements {
			if el.ParentComment != "" || (c.actor != "" && el.Actor == c.actor) {
				continue
			}
			comments = append(comments, mapComment(el, postURN))
		}

		slog.Debug("linkedin api call", "post_urn", postURN, "start", start, "count", len(body.Elements), "total", body.Paging.Total)

		start += len(body.Elements)
		if len(body.Elements) == 0 || start >= body.Paging.Total {
			break
		}
	}

	if comments == nil {
		comments = []model.Comment{}
	}
	return comments, nil
}

// Dispatch posts the generated reply as a nested comment under the original.
func (c *Client) Dispatch(ctx context.Context, rec model.ProcessedRecord) error {
	if rec.Comment.PostURN == "" {
		return fmt.Errorf("reply to %s: comment has no post urn", rec.Comment.ID)
	}

	payload := map[string]any{
		"actor":         c.actor,
		"object":        rec.Comment.PostURN,
		"parentComment": rec.Comment.ID,
		"message":       map[string]string{"text": rec.Response.Text},
	}

	if err := c.do(ctx, http.MethodPost, c.commentsURL(rec.Comment.PostURN), payload, nil); err != nil {
		return fmt.Errorf("reply to %s: %w", rec.Comment.ID, err)
	}
	return nil
}

func (c *Client) commentsURL(postURN string) string {
	return c.baseURL + "/socialActions/" + url.QueryEscape(postURN) + "/comments"
}

func (c *Client) do(ctx context.Context, method, target string, payload, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, target, payload, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, target string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("LinkedIn-Version", apiVersion)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: apiMessage(msg)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// apiMessage extracts the "message" field of a LinkedIn error body, falling
// back to the raw text.
func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

func mapComment(el commentJSON, postURN string) model.Comment {
	id := el.URN
	if id == "" {
		id = el.ID
	}

	meta := map[string]string{"platform": "linkedin"}
	if el.Actor != "" {
		meta["actor"] = el.Actor
	}
	if el.ID != "" {
		meta["linkedin_id"] = el.ID
	}

	var received time.Time
	if el.Created.Time > 0 {
		received = time.UnixMilli(el.Created.Time).UTC()
	}

	return model.Comment{
		ID:         id,
		PostURN:    postURN,
		Text:       textutil.FromHTML(el.Message.Text),
		Metadata:   meta,
		ReceivedAt: received,
	}
}
