package model

import "time"

// ProcessedRecord is the persisted outcome of processing one comment. It is
// created at most once per Comment.ID and never mutated afterwards.
type ProcessedRecord struct {
	Comment     Comment
	Sentiment   SentimentResult
	Response    Response
	ProcessedAt time.Time

	// AwaitingDispatch is true when the reply was queued for delivery to the
	// originating platform at creation time.
	AwaitingDispatch bool
}

// RecordFilter narrows a record listing. Zero values mean "no filter".
type RecordFilter struct {
	Label   SentimentLabel
	PostURN string
	Limit   int
}
