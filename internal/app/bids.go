package app

import (
	"context"
	"errors"
	"time"

	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/domain/bid"
	"auctioneer-service/internal/domain/shared"
	"auctioneer-service/internal/metrics"
	"auctioneer-service/internal/ports/inbound"
	"auctioneer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultBidListLimit = 50

// BidService implements the bid use cases. The placement path is the
// correctness-critical algorithm of the whole system: two bidders reading the
// same current bid must never both commit, so every write is guarded by the
// auction revision read during validation and retried from a fresh read when
// the guard fails.
type BidService struct {
	auctions    outbound.AuctionStore
	ledger      outbound.BidLedger
	broadcaster outbound.Broadcaster
	retryLimit  int
	logger      zerolog.Logger
}

type BidServiceParams struct {
	Auctions    outbound.AuctionStore
	Ledger      outbound.BidLedger
	Broadcaster outbound.Broadcaster
	RetryLimit  int
	Logger      zerolog.Logger
}

// NewBidService creates a new bid service
func NewBidService(params BidServiceParams) *BidService {
	retryLimit := params.RetryLimit
	if retryLimit <= 0 {
		retryLimit = 5
	}
	return &BidService{
		auctions:    params.Auctions,
		ledger:      params.Ledger,
		broadcaster: params.Broadcaster,
		retryLimit:  retryLimit,
		logger:      params.Logger.With().Str("component", "bid_service").Logger(),
	}
}

// PlaceBid validates and atomically commits a single bid against the
// auction's current state
func (s *BidService) PlaceBid(ctx context.Context, req inbound.PlaceBidRequest) (*bid.Bid, *auction.Auction, error) {
	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("bidder_id", req.BidderID).
		Str("amount", req.Amount.String()).
		Msg("Attempting to place bid")

	if !req.Amount.IsPositive() {
		return nil, nil, shared.ErrBidAmountInvalid
	}

	for attempt := 0; attempt < s.retryLimit; attempt++ {
		a, err := s.auctions.GetByID(ctx, req.AuctionID)
		if err != nil {
			return nil, nil, err
		}

		now := time.Now().UTC()
		if !a.IsActive() {
			return nil, nil, shared.ErrAuctionNotActive
		}
		if a.Expired(now) {
			return nil, nil, shared.ErrAuctionExpired
		}
		if !req.Amount.GreaterThan(a.CurrentBid) {
			s.logger.Warn().
				Str("auction_id", a.ID.String()).
				Str("current_bid", a.CurrentBid.String()).
				Str("amount", req.Amount.String()).
				Msg("Bid amount not strictly above current bid")
			return nil, nil, shared.ErrInvalidBid
		}

		newBid := &bid.Bid{
			ID:          uuid.New(),
			AuctionID:   a.ID,
			BidderID:    req.BidderID,
			BidderEmail: req.BidderEmail,
			Amount:      req.Amount,
			CreatedAt:   now,
		}

		// The ledger row and the auction's bid state land in one atomic
		// write; no partial state is ever observable
		updated, err := s.ledger.Commit(ctx, newBid, a.Revision)
		if errors.Is(err, shared.ErrRevisionMismatch) {
			// Another bid committed between read and write, revalidate
			// against the fresh state
			metrics.BidConflict()
			s.logger.Debug().
				Str("auction_id", a.ID.String()).
				Int("attempt", attempt+1).
				Msg("Revision guard failed, retrying bid placement")
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		metrics.BidAccepted()
		s.broadcastNewBid(ctx, newBid, updated)

		s.logger.Info().
			Str("bid_id", newBid.ID.String()).
			Str("auction_id", a.ID.String()).
			Str("amount", newBid.Amount.String()).
			Int("bid_count", updated.BidCount).
			Msg("Bid placed successfully")
		return newBid, updated, nil
	}

	metrics.BidRetriesExhausted()
	s.logger.Warn().
		Str("auction_id", req.AuctionID.String()).
		Int("retry_limit", s.retryLimit).
		Msg("Bid retry bound exhausted")
	return nil, nil, shared.ErrConcurrentBidConflict
}

func (s *BidService) broadcastNewBid(ctx context.Context, b *bid.Bid, a *auction.Auction) {
	event := outbound.Event{
		Type:      outbound.EventTypeNewBid,
		AuctionID: a.ID,
		Data: outbound.NewBidData{
			AuctionID:   a.ID,
			Amount:      b.Amount,
			BidderID:    b.BidderID,
			BidderEmail: b.BidderEmail,
			Auction:     a,
		},
	}

	if err := s.broadcaster.Publish(ctx, a.ID, event); err != nil {
		// Delivery is best-effort, the bid is already committed
		s.logger.Error().Err(err).Str("bid_id", b.ID.String()).Msg("Failed to broadcast bid event")
	}
}

// ListBids retrieves bids for an auction, newest first
func (s *BidService) ListBids(ctx context.Context, auctionID uuid.UUID, limit int) ([]*bid.Bid, error) {
	if limit <= 0 {
		limit = defaultBidListLimit
	}
	return s.ledger.ListByAuction(ctx, auctionID, limit)
}

// ListBidderBids retrieves all bids placed by one bidder
func (s *BidService) ListBidderBids(ctx context.Context, bidderID string) ([]*bid.Bid, error) {
	return s.ledger.ListByBidder(ctx, bidderID)
}
