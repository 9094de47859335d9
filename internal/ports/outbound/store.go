package outbound

import (
	"context"
	"time"

	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/domain/bid"
	"auctioneer-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionChange describes the fields a conditional update may touch. A nil
// field is left untouched. Bid state never moves through here; accepted
// bids go through BidLedger.Commit so the ledger row and the auction
// advance in one atomic write.
type AuctionChange struct {
	Status      *auction.Status
	Title       *string
	Description *string
	MinimumBid  *decimal.Decimal
	EndTime     *time.Time
	UpdatedAt   time.Time
}

// AuctionStore defines the interface for auction record operations.
// Auction records are mutated only through ConditionalUpdate; the write
// succeeds only if the stored revision still matches expectedRevision, and a
// successful write bumps the revision.
type AuctionStore interface {
	// Insert creates a new auction record
	Insert(ctx context.Context, a *auction.Auction) error

	// GetByID retrieves an auction by ID
	GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)

	// List retrieves auctions, newest first, with an optional status
	// filter. A limit of zero or less means no limit.
	List(ctx context.Context, status *auction.Status, limit int) ([]*auction.Auction, error)

	// ConditionalUpdate applies change guarded by expectedRevision and
	// returns the refreshed record, or ErrRevisionMismatch
	ConditionalUpdate(ctx context.Context, id uuid.UUID, expectedRevision int64, change AuctionChange) (*auction.Auction, error)

	// ListActiveExpired retrieves active auctions whose end time has passed
	ListActiveExpired(ctx context.Context, now time.Time) ([]*auction.Auction, error)

	// Delete removes an auction record (post-finalization cleanup only)
	Delete(ctx context.Context, id uuid.UUID) error
}

// BidLedger is the append-only record of accepted bids
type BidLedger interface {
	// Commit atomically appends the bid and advances its auction's
	// current_bid, bid_count and revision, guarded by expectedRevision.
	// On ErrRevisionMismatch nothing is written; the caller re-reads and
	// revalidates. The refreshed auction record is returned on success.
	Commit(ctx context.Context, b *bid.Bid, expectedRevision int64) (*auction.Auction, error)

	// ListByAuction retrieves bids for an auction, newest first
	ListByAuction(ctx context.Context, auctionID uuid.UUID, limit int) ([]*bid.Bid, error)

	// ListByBidder retrieves all bids placed by a bidder, newest first
	ListByBidder(ctx context.Context, bidderID string) ([]*bid.Bid, error)

	// Highest retrieves the winning candidate for an auction: maximum
	// amount, earliest created_at on ties. Returns ErrNoBidsFound when the
	// auction has no bids.
	Highest(ctx context.Context, auctionID uuid.UUID) (*bid.Bid, error)
}

// WinnerStore persists at most one winner per auction
type WinnerStore interface {
	// Insert records the winner, returning ErrWinnerExists if one is
	// already recorded for the auction
	Insert(ctx context.Context, w *shared.Winner) error

	// GetByAuction retrieves the winner for an auction, or ErrWinnerNotFound
	GetByAuction(ctx context.Context, auctionID uuid.UUID) (*shared.Winner, error)
}
