package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the current status of an auction
type Status string

const (
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

// Auction represents a timed sale with a rising price floor and a deadline.
// Revision is bumped by every conditional update and is the guard value for
// compare-and-swap writes against the store.
type Auction struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	MinimumBid  decimal.Decimal `json:"minimum_bid"`
	CurrentBid  decimal.Decimal `json:"current_bid"`
	BidCount    int             `json:"bid_count"`
	EndTime     time.Time       `json:"end_time"`
	Status      Status          `json:"status"`
	Revision    int64           `json:"revision"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsActive returns true if the auction is currently active
func (a *Auction) IsActive() bool {
	return a.Status == StatusActive
}

// IsEnded returns true if the auction has ended
func (a *Auction) IsEnded() bool {
	return a.Status == StatusEnded
}

// IsCancelled returns true if the auction was cancelled
func (a *Auction) IsCancelled() bool {
	return a.Status == StatusCancelled
}

// Expired returns true if the auction deadline has passed at the given instant
func (a *Auction) Expired(now time.Time) bool {
	return !now.Before(a.EndTime)
}
