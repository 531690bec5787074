package model

import "time"

// Post is a watched social post whose comments are polled.
type Post struct {
	URN          string
	Content      string
	LikeCount    int
	CommentCount int
	ShareCount   int
	AuthorInfo   map[string]string
	LastUpdated  time.Time
}
