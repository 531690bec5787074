// Package github implements the CommentSource and ResponseDispatcher ports
// over issue and pull request conversations using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
	"github.com/ericfisherdev/commentbot/internal/textutil"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.CommentSource      = (*Client)(nil)
	_ driven.ResponseDispatcher = (*Client)(nil)
)

// commentIDPrefix namespaces GitHub comment IDs so they cannot collide with
// other platforms' IDs in the shared record store.
const commentIDPrefix = "gh-"

// Client treats a GitHub issue or pull request as a watched post. Post URNs
// have the form "owner/repo#number".
type Client struct {
	gh       *gh.Client
	username string
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
//
// Comments authored by username are never returned, so the bot does not
// answer its own replies.
func NewClient(token, username string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client, username: username}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, username string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client, username: username}, nil
}

// AuthenticatedUser returns the login the client's token belongs to.
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}
	return user.GetLogin(), nil
}

// SetUsername replaces the login whose comments are skipped.
func (c *Client) SetUsername(username string) {
	c.username = username
}

// FetchComments retrieves every conversation comment on the issue or pull
// request named by postURN. It handles pagination automatically and skips
// comments from bots and from the client's own user.
func (c *Client) FetchComments(ctx context.Context, postURN string) ([]model.Comment, error) {
	owner, repo, number, err := splitIssueRef(postURN)
	if err != nil {
		return nil, err
	}

	opts := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	var allComments []model.Comment

	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing issue comments for %s (page %d): %w", postURN, opts.Page, err)
		}

		logRateLimit(resp, postURN, opts.Page, len(comments))

		for _, ic := range comments {
			if c.skip(ic) {
				continue
			}
			allComments = append(allComments, mapIssueComment(ic, postURN))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if allComments == nil {
		allComments = []model.Comment{}
	}

	return allComments, nil
}

// Dispatch posts the reply as a new conversation comment mentioning the
// original author.
func (c *Client) Dispatch(ctx context.Context, rec model.ProcessedRecord) error {
	owner, repo, number, err := splitIssueRef(rec.Comment.PostURN)
	if err != nil {
		return err
	}

	body := rec.Response.Text
	if rec.Comment.AuthorName != "" {
		body = "@" + rec.Comment.AuthorName + " " + body
	}

	_, _, err = c.gh.Issues.CreateComment(ctx, owner, repo, number, &gh.IssueComment{
		Body: gh.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("creating reply on %s for %s: %w", rec.Comment.PostURN, rec.Comment.ID, err)
	}

	return nil
}

func (c *Client) skip(ic *gh.IssueComment) bool {
	user := ic.GetUser()
	if strings.EqualFold(user.GetType(), "Bot") {
		return true
	}
	return c.username != "" && strings.EqualFold(user.GetLogin(), c.username)
}

// mapIssueComment converts a go-github IssueComment to a domain model Comment.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapIssueComment(ic *gh.IssueComment, postURN string) model.Comment {
	meta := map[string]string{"platform": "github"}
	if u := ic.GetHTMLURL(); u != "" {
		meta["html_url"] = u
	}
	if a := ic.GetAuthorAssociation(); a != "" {
		meta["author_association"] = strings.ToLower(a)
	}

	return model.Comment{
		ID:               commentIDPrefix + strconv.FormatInt(ic.GetID(), 10),
		PostURN:          postURN,
		Text:             textutil.FromMarkdown(ic.GetBody()),
		AuthorName:       ic.GetUser().GetLogin(),
		AuthorProfileURL: ic.GetUser().GetHTMLURL(),
		Metadata:         meta,
		ReceivedAt:       ic.GetCreatedAt().Time.UTC(),
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitIssueRef splits an "owner/repo#number" reference into its components.
func splitIssueRef(ref string) (string, string, int, error) {
	fullName, num, ok := strings.Cut(ref, "#")
	if !ok {
		return "", "", 0, fmt.Errorf("invalid post urn %q: expected owner/repo#number", ref)
	}

	number, err := strconv.Atoi(num)
	if err != nil || number <= 0 {
		return "", "", 0, fmt.Errorf("invalid post urn %q: bad issue number", ref)
	}

	owner, repo, err := splitRepo(fullName)
	if err != nil {
		return "", "", 0, err
	}
	return owner, repo, number, nil
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
