package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// CommentRequest is the JSON body of POST /api/v1/comments.
type CommentRequest struct {
	ID               string            `json:"id"`
	PostURN          string            `json:"post_urn"`
	Text             string            `json:"text"`
	AuthorName       string            `json:"author_name"`
	AuthorProfileURL string            `json:"author_profile_url"`
	Metadata         map[string]string `json:"metadata"`
	ReceivedAt       *time.Time        `json:"received_at,omitempty"`
}

func (r CommentRequest) toModel() model.Comment {
	c := model.Comment{
		ID:               r.ID,
		PostURN:          r.PostURN,
		Text:             r.Text,
		AuthorName:       r.AuthorName,
		AuthorProfileURL: r.AuthorProfileURL,
		Metadata:         r.Metadata,
	}
	if r.ReceivedAt != nil {
		c.ReceivedAt = r.ReceivedAt.UTC()
	}
	return c
}

// RecordResponse is the JSON representation of a processed record.
type RecordResponse struct {
	CommentID        string            `json:"comment_id"`
	PostURN          string            `json:"post_urn,omitempty"`
	Text             string            `json:"text"`
	AuthorName       string            `json:"author_name,omitempty"`
	AuthorProfileURL string            `json:"author_profile_url,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	ReceivedAt       string            `json:"received_at"`
	Polarity         float64           `json:"polarity"`
	Label            string            `json:"label"`
	Response         string            `json:"response"`
	TemplateID       string            `json:"template_id"`
	ProcessedAt      string            `json:"processed_at"`
	AwaitingDispatch bool              `json:"awaiting_dispatch"`
	Dispatch         *DispatchResponse `json:"dispatch,omitempty"`
}

// DispatchResponse is the JSON representation of reply delivery state.
type DispatchResponse struct {
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	LastError   string `json:"last_error,omitempty"`
	DeliveredAt string `json:"delivered_at,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

// dispatchErrorResponse is returned with 502 when the record persisted but the
// reply could not be delivered.
type dispatchErrorResponse struct {
	Error  string          `json:"error"`
	Record *RecordResponse `json:"record,omitempty"`
}

// PostRequest is the JSON body of POST /api/v1/posts.
type PostRequest struct {
	URN          string            `json:"urn"`
	Content      string            `json:"content"`
	LikeCount    int               `json:"like_count"`
	CommentCount int               `json:"comment_count"`
	ShareCount   int               `json:"share_count"`
	AuthorInfo   map[string]string `json:"author_info"`
}

// PostResponse is the JSON representation of a watched post.
type PostResponse struct {
	URN          string            `json:"urn"`
	Content      string            `json:"content"`
	LikeCount    int               `json:"like_count"`
	CommentCount int               `json:"comment_count"`
	ShareCount   int               `json:"share_count"`
	AuthorInfo   map[string]string `json:"author_info,omitempty"`
	LastUpdated  string            `json:"last_updated"`
}

// StatsResponse is the per-label record count.
type StatsResponse struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
	Total    int `json:"total"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func toRecordResponse(rec model.ProcessedRecord) RecordResponse {
	return RecordResponse{
		CommentID:        rec.Comment.ID,
		PostURN:          rec.Comment.PostURN,
		Text:             rec.Comment.Text,
		AuthorName:       rec.Comment.AuthorName,
		AuthorProfileURL: rec.Comment.AuthorProfileURL,
		Metadata:         rec.Comment.Metadata,
		ReceivedAt:       formatTime(rec.Comment.ReceivedAt),
		Polarity:         rec.Sentiment.Polarity,
		Label:            string(rec.Sentiment.Label),
		Response:         rec.Response.Text,
		TemplateID:       rec.Response.TemplateID,
		ProcessedAt:      formatTime(rec.ProcessedAt),
		AwaitingDispatch: rec.AwaitingDispatch,
	}
}

func toDispatchResponse(d model.Dispatch) *DispatchResponse {
	return &DispatchResponse{
		Status:      string(d.Status),
		Attempts:    d.Attempts,
		LastError:   d.LastError,
		DeliveredAt: formatTime(d.DeliveredAt),
		UpdatedAt:   formatTime(d.UpdatedAt),
	}
}

func toPostResponse(p model.Post) PostResponse {
	return PostResponse{
		URN:          p.URN,
		Content:      p.Content,
		LikeCount:    p.LikeCount,
		CommentCount: p.CommentCount,
		ShareCount:   p.ShareCount,
		AuthorInfo:   p.AuthorInfo,
		LastUpdated:  formatTime(p.LastUpdated),
	}
}

func toStatsResponse(counts map[model.SentimentLabel]int) StatsResponse {
	s := StatsResponse{
		Positive: counts[model.SentimentPositive],
		Neutral:  counts[model.SentimentNeutral],
		Negative: counts[model.SentimentNegative],
	}
	s.Total = s.Positive + s.Neutral + s.Negative
	return s
}
