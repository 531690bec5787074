package model

import "time"

// DispatchStatus tracks delivery of a reply to the originating platform.
type DispatchStatus string

const (
	DispatchPending   DispatchStatus = "pending"
	DispatchInFlight  DispatchStatus = "in_flight"
	DispatchDelivered DispatchStatus = "delivered"
	DispatchFailed    DispatchStatus = "failed"
)

// Dispatch is the delivery state for one processed record.
type Dispatch struct {
	CommentID   string
	Status      DispatchStatus
	Attempts    int
	LastError   string
	ClaimedAt   time.Time // Zero unless a claim was ever taken.
	DeliveredAt time.Time // Zero until delivered.
	UpdatedAt   time.Time
}
