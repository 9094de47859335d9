package outbound

import (
	"context"

	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType represents the kind of event being broadcast
type EventType string

const (
	EventTypeNewBid           EventType = "new_bid"
	EventTypeAuctionUpdate    EventType = "auction_update"
	EventTypeAuctionEnded     EventType = "auction_ended"
	EventTypeAuctionCancelled EventType = "auction_cancelled"
)

// Event is the wire message delivered to subscribers of an auction. The
// auction ID is a routing key only and is not part of the payload; each Data
// shape carries whatever identifiers it needs.
type Event struct {
	Type      EventType `json:"type"`
	AuctionID uuid.UUID `json:"-"`
	Data      any       `json:"data"`
}

// NewBidData is the payload of a new_bid event
type NewBidData struct {
	AuctionID   uuid.UUID        `json:"auction_id"`
	Amount      decimal.Decimal  `json:"amount"`
	BidderID    string           `json:"bidder_id"`
	BidderEmail string           `json:"bidder_email"`
	Auction     *auction.Auction `json:"auction"`
}

// AuctionEndedData is the payload of an auction_ended event: the final
// auction snapshot plus the winner, null when nobody bid
type AuctionEndedData struct {
	*auction.Auction
	Winner *shared.Winner `json:"winner"`
}

// Broadcaster defines the logical publish/subscribe contract for auction
// events. Delivery is best-effort and must never block the lifecycle engine.
type Broadcaster interface {
	// Subscribe registers a subscriber channel for one auction's events
	Subscribe(ctx context.Context, auctionID uuid.UUID, subscriberID string, events chan<- Event) error

	// Unsubscribe removes a subscriber from one auction; idempotent
	Unsubscribe(ctx context.Context, auctionID uuid.UUID, subscriberID string) error

	// Publish delivers an event to all current subscribers of an auction
	Publish(ctx context.Context, auctionID uuid.UUID, event Event) error
}
