package inbound

import (
	"context"

	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/domain/bid"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LifecycleService defines the auction lifecycle operations
type LifecycleService interface {
	// CreateAuction creates a new active auction and arms its expiry timer
	CreateAuction(ctx context.Context, req CreateAuctionRequest) (*auction.Auction, error)

	// GetAuction retrieves an auction by ID
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error)

	// ListAuctions retrieves a list of auctions
	ListAuctions(ctx context.Context, req ListAuctionsRequest) ([]*auction.Auction, error)

	// UpdateAuction patches an auction's details
	UpdateAuction(ctx context.Context, req UpdateAuctionRequest) (*auction.Auction, error)

	// CancelAuction transitions an active auction to cancelled
	CancelAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error)
}

// BidService defines the bid operations
type BidService interface {
	// PlaceBid validates and commits a bid, returning the accepted bid and
	// the refreshed auction snapshot
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*bid.Bid, *auction.Auction, error)

	// ListBids retrieves bids for an auction, newest first
	ListBids(ctx context.Context, auctionID uuid.UUID, limit int) ([]*bid.Bid, error)

	// ListBidderBids retrieves all bids placed by one bidder
	ListBidderBids(ctx context.Context, bidderID string) ([]*bid.Bid, error)
}

// request to create an auction
type CreateAuctionRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	MinimumBid  decimal.Decimal `json:"minimum_bid"`
	EndTime     string          `json:"end_time"`
}

// request to list auctions
type ListAuctionsRequest struct {
	Status *auction.Status `json:"status,omitempty"`
	Limit  int             `json:"limit"`
}

// request to patch an auction; nil fields are left untouched
type UpdateAuctionRequest struct {
	AuctionID   uuid.UUID        `json:"auction_id"`
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	MinimumBid  *decimal.Decimal `json:"minimum_bid,omitempty"`
	EndTime     *string          `json:"end_time,omitempty"`
}

// request to place a bid
type PlaceBidRequest struct {
	AuctionID   uuid.UUID       `json:"auction_id"`
	BidderID    string          `json:"bidder_id"`
	BidderEmail string          `json:"bidder_email"`
	Amount      decimal.Decimal `json:"amount"`
}
