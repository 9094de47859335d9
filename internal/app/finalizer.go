package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/domain/bid"
	"auctioneer-service/internal/domain/shared"
	"auctioneer-service/internal/metrics"
	"auctioneer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WinnerResolver computes the winning bid and performs the idempotent
// Active to Ended transition. The timer path and the reconciliation sweep
// both converge here, so Finalize must tolerate concurrent invocations: only
// the caller whose revision-guarded transition lands records the winner and
// broadcasts, every other caller observes a non-active auction and no-ops.
type WinnerResolver struct {
	auctions    outbound.AuctionStore
	ledger      outbound.BidLedger
	winners     outbound.WinnerStore
	broadcaster outbound.Broadcaster
	announcer   outbound.Announcer
	retryLimit  int
	logger      zerolog.Logger
}

type WinnerResolverParams struct {
	Auctions    outbound.AuctionStore
	Ledger      outbound.BidLedger
	Winners     outbound.WinnerStore
	Broadcaster outbound.Broadcaster
	Announcer   outbound.Announcer
	RetryLimit  int
	Logger      zerolog.Logger
}

// NewWinnerResolver creates a new winner resolver
func NewWinnerResolver(params WinnerResolverParams) *WinnerResolver {
	retryLimit := params.RetryLimit
	if retryLimit <= 0 {
		retryLimit = 5
	}
	return &WinnerResolver{
		auctions:    params.Auctions,
		ledger:      params.Ledger,
		winners:     params.Winners,
		broadcaster: params.Broadcaster,
		announcer:   params.Announcer,
		retryLimit:  retryLimit,
		logger:      params.Logger.With().Str("component", "winner_resolver").Logger(),
	}
}

// Finalize transitions an active auction to ended and records its winner.
// Calling it on an already ended or cancelled auction is a no-op.
func (r *WinnerResolver) Finalize(ctx context.Context, auctionID uuid.UUID) error {
	for attempt := 0; attempt < r.retryLimit; attempt++ {
		a, err := r.auctions.GetByID(ctx, auctionID)
		if err != nil {
			return err
		}

		if !a.IsActive() {
			r.logger.Debug().
				Str("auction_id", auctionID.String()).
				Str("status", string(a.Status)).
				Msg("Auction already finalized, nothing to do")
			return nil
		}

		highest, err := r.ledger.Highest(ctx, auctionID)
		if err != nil && !errors.Is(err, shared.ErrNoBidsFound) {
			return err
		}

		status := auction.StatusEnded
		ended, err := r.auctions.ConditionalUpdate(ctx, a.ID, a.Revision, outbound.AuctionChange{
			Status:    &status,
			UpdatedAt: time.Now().UTC(),
		})
		if errors.Is(err, shared.ErrRevisionMismatch) {
			// A last-moment bid or a concurrent finalizer moved the
			// revision, reread and decide again
			r.logger.Debug().
				Str("auction_id", auctionID.String()).
				Int("attempt", attempt+1).
				Msg("Revision guard failed during finalize, rereading")
			continue
		}
		if err != nil {
			return err
		}

		winner := r.recordWinner(ctx, ended, highest)
		r.broadcastEnded(ctx, ended, winner)
		r.announce(ctx, ended, winner)
		return nil
	}

	// Someone else keeps winning the revision race, the reconciliation
	// sweep will come back for this auction if it is still active
	r.logger.Warn().
		Str("auction_id", auctionID.String()).
		Int("retry_limit", r.retryLimit).
		Msg("Finalize retry bound exhausted, leaving to the sweep")
	return nil
}

func (r *WinnerResolver) recordWinner(ctx context.Context, a *auction.Auction, highest *bid.Bid) *shared.Winner {
	if highest == nil {
		metrics.AuctionFinalized("no_bids")
		r.logger.Info().Str("auction_id", a.ID.String()).Msg("Auction ended with no bids")
		return nil
	}

	winner := &shared.Winner{
		AuctionID:   a.ID,
		BidderID:    highest.BidderID,
		BidderEmail: highest.BidderEmail,
		Amount:      highest.Amount,
		CreatedAt:   time.Now().UTC(),
	}

	if err := r.winners.Insert(ctx, winner); err != nil {
		if errors.Is(err, shared.ErrWinnerExists) {
			r.logger.Warn().Str("auction_id", a.ID.String()).Msg("Winner already recorded for auction")
		} else {
			// The Ended transition is already committed and stands;
			// the winner row can be reconciled from the ledger
			r.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to record winner")
		}
	}

	metrics.AuctionFinalized("won")
	r.logger.Info().
		Str("auction_id", a.ID.String()).
		Str("winner_id", winner.BidderID).
		Str("final_price", winner.Amount.String()).
		Msg("Auction ended with winner")
	return winner
}

func (r *WinnerResolver) broadcastEnded(ctx context.Context, a *auction.Auction, winner *shared.Winner) {
	event := outbound.Event{
		Type:      outbound.EventTypeAuctionEnded,
		AuctionID: a.ID,
		Data: outbound.AuctionEndedData{
			Auction: a,
			Winner:  winner,
		},
	}
	if err := r.broadcaster.Publish(ctx, a.ID, event); err != nil {
		r.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to broadcast auction end event")
	}
}

func (r *WinnerResolver) announce(ctx context.Context, a *auction.Auction, winner *shared.Winner) {
	if r.announcer == nil {
		return
	}

	var text string
	if winner != nil {
		text = fmt.Sprintf("Auction %s sold to %s for %s", a.Title, winner.BidderEmail, winner.Amount.StringFixed(2))
	} else {
		text = fmt.Sprintf("Auction %s ended with no bids", a.Title)
	}

	if err := r.announcer.Announce(ctx, text); err != nil {
		r.logger.Warn().Err(err).Str("auction_id", a.ID.String()).Msg("Announcement failed")
	}
}
