package shared

import "errors"

// Domain-specific errors
var (
	// Auction lifecycle errors
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrAuctionNotActive = errors.New("auction is not accepting bids")
	ErrAuctionExpired   = errors.New("auction has passed its end time")
	ErrInvalidEndTime   = errors.New("end time must be in the future")
	ErrInvalidMinimum   = errors.New("minimum bid must be greater than 0")
	ErrTitleRequired    = errors.New("title is required")

	// Bid errors
	ErrInvalidBid            = errors.New("bid amount must be higher than current bid")
	ErrBidAmountInvalid      = errors.New("bid amount must be greater than 0")
	ErrConcurrentBidConflict = errors.New("bid lost a concurrent update race, resubmit")
	ErrNoBidsFound           = errors.New("no bids found")

	// Store errors
	ErrRevisionMismatch = errors.New("auction revision changed since read")
	ErrWinnerExists     = errors.New("winner already recorded for auction")
	ErrWinnerNotFound   = errors.New("no winner recorded for auction")

	// Identity errors
	ErrUnauthenticated = errors.New("invalid or expired credentials")

	// WebSocket message validation errors
	ErrMessageTypeRequired = errors.New("message type is required")
	ErrAuctionIDRequired   = errors.New("auction_id is required")
	ErrInvalidAmount       = errors.New("valid amount is required")
	ErrMinimumBidRequired  = errors.New("minimum_bid is required")
	ErrUnknownMessageType  = errors.New("unknown message type")
)
