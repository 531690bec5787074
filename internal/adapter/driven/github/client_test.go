package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/ericfisherdev/commentbot/internal/adapter/driven/github"
	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) (*ghAdapter.Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(
		server.Client(),
		server.URL+"/",
		"commentbot",
	)
	require.NoError(t, err)

	return client, server
}

// commentJSON is a helper struct for building GitHub issue comment responses.
type commentJSON struct {
	ID                int64    `json:"id"`
	Body              string   `json:"body"`
	HTMLURL           string   `json:"html_url"`
	AuthorAssociation string   `json:"author_association"`
	User              userJSON `json:"user"`
	Created           string   `json:"created_at"`
}

type userJSON struct {
	Login   string `json:"login"`
	Type    string `json:"type"`
	HTMLURL string `json:"html_url"`
}

func TestFetchComments_MapsIssueComments(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/issues/42/comments", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]commentJSON{
			{
				ID:                3001,
				Body:              "## Wow\n\nThis is amazing, thank you!",
				HTMLURL:           "https://github.com/owner/repo/issues/42#issuecomment-3001",
				AuthorAssociation: "CONTRIBUTOR",
				User:              userJSON{Login: "charlie", Type: "User", HTMLURL: "https://github.com/charlie"},
				Created:           "2026-01-10T10:00:00Z",
			},
		})
	})

	client, _ := newTestClient(t, handler)
	result, err := client.FetchComments(context.Background(), "owner/repo#42")

	require.NoError(t, err)
	require.Len(t, result, 1)

	c := result[0]
	assert.Equal(t, "gh-3001", c.ID)
	assert.Equal(t, "owner/repo#42", c.PostURN)
	assert.Equal(t, "Wow This is amazing, thank you!", c.Text)
	assert.Equal(t, "charlie", c.AuthorName)
	assert.Equal(t, "https://github.com/charlie", c.AuthorProfileURL)
	assert.Equal(t, "github", c.Metadata["platform"])
	assert.Equal(t, "contributor", c.Metadata["author_association"])
	assert.Equal(t, time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC), c.ReceivedAt)
}

func TestFetchComments_Pagination(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")

		w.Header().Set("Content-Type", "application/json")

		if page == "" || page == "1" {
			// Page 1: include Link header pointing to page 2
			w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next"`, "http://"+r.Host+r.URL.Path))
			json.NewEncoder(w).Encode([]commentJSON{
				{ID: 1, Body: "first", User: userJSON{Login: "dev1"}, Created: "2026-01-01T00:00:00Z"},
			})
		} else {
			json.NewEncoder(w).Encode([]commentJSON{
				{ID: 2, Body: "second", User: userJSON{Login: "dev2"}, Created: "2026-01-02T00:00:00Z"},
			})
		}
	})

	client, _ := newTestClient(t, handler)
	result, err := client.FetchComments(context.Background(), "owner/repo#7")

	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "gh-1", result[0].ID)
	assert.Equal(t, "gh-2", result[1].ID)
}

func TestFetchComments_SkipsBotsAndSelf(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]commentJSON{
			{ID: 1, Body: "ci passed", User: userJSON{Login: "ci[bot]", Type: "Bot"}},
			{ID: 2, Body: "Thanks!", User: userJSON{Login: "CommentBot", Type: "User"}},
			{ID: 3, Body: "Nice", User: userJSON{Login: "dana", Type: "User"}},
		})
	})

	client, _ := newTestClient(t, handler)
	result, err := client.FetchComments(context.Background(), "owner/repo#1")

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "gh-3", result[0].ID)
}

func TestFetchComments_EmptyIssue(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	})

	client, _ := newTestClient(t, handler)
	result, err := client.FetchComments(context.Background(), "owner/repo#1")

	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestFetchComments_InvalidPostURN(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for invalid post urn")
	})

	client, _ := newTestClient(t, handler)

	tests := []struct {
		name string
		urn  string
	}{
		{name: "no number", urn: "owner/repo"},
		{name: "no slash", urn: "ownerrepo#1"},
		{name: "empty owner", urn: "/repo#1"},
		{name: "non-numeric", urn: "owner/repo#abc"},
		{name: "zero", urn: "owner/repo#0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.FetchComments(context.Background(), tt.urn)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid")
		})
	}
}

func TestFetchComments_APIError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	})

	client, _ := newTestClient(t, handler)
	_, err := client.FetchComments(context.Background(), "owner/repo#1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner/repo#1")
}

func TestDispatch_CreatesMentionReply(t *testing.T) {
	var got map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/owner/repo/issues/42/comments", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 9001}`))
	})

	client, _ := newTestClient(t, handler)
	err := client.Dispatch(context.Background(), model.ProcessedRecord{
		Comment:  model.Comment{ID: "gh-3001", PostURN: "owner/repo#42", AuthorName: "charlie"},
		Response: model.Response{Text: "Thanks so much!"},
	})

	require.NoError(t, err)
	assert.Equal(t, "@charlie Thanks so much!", got["body"])
}

func TestDispatch_APIError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Resource not accessible by integration"}`))
	})

	client, _ := newTestClient(t, handler)
	err := client.Dispatch(context.Background(), model.ProcessedRecord{
		Comment:  model.Comment{ID: "gh-1", PostURN: "owner/repo#42"},
		Response: model.Response{Text: "hi"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "gh-1")
}

func TestAuthenticatedUser(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"login": "commentbot"}`))
	})

	client, _ := newTestClient(t, handler)
	login, err := client.AuthenticatedUser(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "commentbot", login)
}
