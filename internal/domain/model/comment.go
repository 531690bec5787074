package model

import "time"

// Comment is one inbound unit of work captured from a watched post.
// ID is globally unique and is the idempotence key for processing.
type Comment struct {
	ID               string
	PostURN          string
	Text             string
	AuthorName       string
	AuthorProfileURL string
	Metadata         map[string]string
	ReceivedAt       time.Time
}
