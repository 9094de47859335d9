package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auctioneer-service/internal/adapters/memory"
	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/domain/bid"
	"auctioneer-service/internal/domain/shared"
	"auctioneer-service/internal/ports/inbound"
	"auctioneer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// captureBroadcaster records published events for assertions
type captureBroadcaster struct {
	mu     sync.Mutex
	events []outbound.Event
}

func (c *captureBroadcaster) Subscribe(ctx context.Context, auctionID uuid.UUID, subscriberID string, events chan<- outbound.Event) error {
	return nil
}

func (c *captureBroadcaster) Unsubscribe(ctx context.Context, auctionID uuid.UUID, subscriberID string) error {
	return nil
}

func (c *captureBroadcaster) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureBroadcaster) captured(eventType outbound.EventType) []outbound.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []outbound.Event
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// conflictingBidLedger fails every commit with a revision mismatch,
// simulating a writer that always loses the race
type conflictingBidLedger struct {
	outbound.BidLedger
}

func (l *conflictingBidLedger) Commit(ctx context.Context, b *bid.Bid, expectedRevision int64) (*auction.Auction, error) {
	return nil, shared.ErrRevisionMismatch
}

// failingBidLedger rejects every commit outright, standing in for a ledger
// whose storage is down
type failingBidLedger struct {
	outbound.BidLedger
}

func (l *failingBidLedger) Commit(ctx context.Context, b *bid.Bid, expectedRevision int64) (*auction.Auction, error) {
	return nil, errors.New("ledger storage unavailable")
}

func seedActiveAuction(t *testing.T, store *memory.Store, minimum string, endIn time.Duration) *auction.Auction {
	t.Helper()

	now := time.Now().UTC()
	a := &auction.Auction{
		ID:         uuid.New(),
		Title:      "Vintage guitar",
		MinimumBid: decimal.RequireFromString(minimum),
		CurrentBid: decimal.RequireFromString(minimum),
		EndTime:    now.Add(endIn),
		Status:     auction.StatusActive,
		Revision:   1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.Auctions().Insert(context.Background(), a))
	return a
}

func newTestBidService(store *memory.Store, broadcaster outbound.Broadcaster) *BidService {
	return NewBidService(BidServiceParams{
		Auctions:    store.Auctions(),
		Ledger:      store.Bids(),
		Broadcaster: broadcaster,
		Logger:      zerolog.Nop(),
	})
}

func TestPlaceBid(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		amount      string
		expectedErr error
	}{
		{name: "above_minimum_accepted", amount: "150", expectedErr: nil},
		{name: "equal_to_current_rejected", amount: "100", expectedErr: shared.ErrInvalidBid},
		{name: "below_current_rejected", amount: "80", expectedErr: shared.ErrInvalidBid},
		{name: "zero_rejected", amount: "0", expectedErr: shared.ErrBidAmountInvalid},
		{name: "negative_rejected", amount: "-5", expectedErr: shared.ErrBidAmountInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			broadcaster := &captureBroadcaster{}
			svc := newTestBidService(store, broadcaster)
			a := seedActiveAuction(t, store, "100", time.Hour)

			placed, updated, err := svc.PlaceBid(ctx, inbound.PlaceBidRequest{
				AuctionID:   a.ID,
				BidderID:    "bidder-1",
				BidderEmail: "bidder1@example.com",
				Amount:      decimal.RequireFromString(tt.amount),
			})

			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				require.Nil(t, placed)

				// Rejected bids leave no trace
				bids, listErr := store.Bids().ListByAuction(ctx, a.ID, 10)
				require.NoError(t, listErr)
				require.Empty(t, bids)
				require.Empty(t, broadcaster.captured(outbound.EventTypeNewBid))
				return
			}

			require.NoError(t, err)
			require.True(t, placed.Amount.Equal(decimal.RequireFromString(tt.amount)))
			require.True(t, updated.CurrentBid.Equal(placed.Amount))
			require.Equal(t, 1, updated.BidCount)
			require.Equal(t, a.Revision+1, updated.Revision)
			require.Len(t, broadcaster.captured(outbound.EventTypeNewBid), 1)
		})
	}
}

func TestPlaceBidSequence(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	broadcaster := &captureBroadcaster{}
	svc := newTestBidService(store, broadcaster)
	a := seedActiveAuction(t, store, "100", time.Hour)

	place := func(bidder, amount string) error {
		_, _, err := svc.PlaceBid(ctx, inbound.PlaceBidRequest{
			AuctionID:   a.ID,
			BidderID:    bidder,
			BidderEmail: bidder + "@example.com",
			Amount:      decimal.RequireFromString(amount),
		})
		return err
	}

	require.ErrorIs(t, place("alice", "80"), shared.ErrInvalidBid)
	require.NoError(t, place("alice", "150"))
	require.ErrorIs(t, place("bob", "150"), shared.ErrInvalidBid)
	require.NoError(t, place("bob", "200"))

	current, err := store.Auctions().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, current.CurrentBid.Equal(decimal.RequireFromString("200")))
	require.Equal(t, 2, current.BidCount)

	bids, err := store.Bids().ListByAuction(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, bids, 2)
}

func TestPlaceBidAuctionStates(t *testing.T) {
	ctx := context.Background()
	amount := decimal.RequireFromString("500")

	t.Run("unknown_auction", func(t *testing.T) {
		store := memory.NewStore()
		svc := newTestBidService(store, &captureBroadcaster{})

		_, _, err := svc.PlaceBid(ctx, inbound.PlaceBidRequest{
			AuctionID: uuid.New(),
			BidderID:  "bidder-1",
			Amount:    amount,
		})
		require.ErrorIs(t, err, shared.ErrAuctionNotFound)
	})

	t.Run("ended_auction", func(t *testing.T) {
		store := memory.NewStore()
		svc := newTestBidService(store, &captureBroadcaster{})
		a := seedActiveAuction(t, store, "100", time.Hour)

		status := auction.StatusEnded
		_, err := store.Auctions().ConditionalUpdate(ctx, a.ID, a.Revision, outbound.AuctionChange{
			Status:    &status,
			UpdatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)

		_, _, err = svc.PlaceBid(ctx, inbound.PlaceBidRequest{
			AuctionID: a.ID,
			BidderID:  "bidder-1",
			Amount:    amount,
		})
		require.ErrorIs(t, err, shared.ErrAuctionNotActive)
	})

	t.Run("expired_but_not_yet_finalized", func(t *testing.T) {
		store := memory.NewStore()
		svc := newTestBidService(store, &captureBroadcaster{})
		a := seedActiveAuction(t, store, "100", -time.Minute)

		_, _, err := svc.PlaceBid(ctx, inbound.PlaceBidRequest{
			AuctionID: a.ID,
			BidderID:  "bidder-1",
			Amount:    amount,
		})
		require.ErrorIs(t, err, shared.ErrAuctionExpired)
	})
}

// Concurrent bidders must never both commit against the same observed
// current bid. The revision guard serializes them; after the dust settles
// the auction state and the ledger must agree exactly.
func TestPlaceBidConcurrent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	broadcaster := &captureBroadcaster{}
	svc := newTestBidService(store, broadcaster)
	a := seedActiveAuction(t, store, "100", time.Hour)

	const bidders = 20

	var wg sync.WaitGroup
	accepted := make(chan decimal.Decimal, bidders)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			amount := decimal.NewFromInt(int64(101 + n*10))
			placed, _, err := svc.PlaceBid(ctx, inbound.PlaceBidRequest{
				AuctionID:   a.ID,
				BidderID:    fmt.Sprintf("bidder-%d", n),
				BidderEmail: fmt.Sprintf("bidder-%d@example.com", n),
				Amount:      amount,
			})
			if err == nil {
				accepted <- placed.Amount
			}
		}(i)
	}
	wg.Wait()
	close(accepted)

	var acceptedCount int
	highest := decimal.Zero
	for amount := range accepted {
		acceptedCount++
		if amount.GreaterThan(highest) {
			highest = amount
		}
	}
	require.Greater(t, acceptedCount, 0)

	current, err := store.Auctions().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, current.CurrentBid.Equal(highest),
		"current bid %s must equal highest accepted %s", current.CurrentBid, highest)
	require.Equal(t, acceptedCount, current.BidCount)

	bids, err := store.Bids().ListByAuction(ctx, a.ID, bidders)
	require.NoError(t, err)
	require.Len(t, bids, acceptedCount)
	require.Len(t, broadcaster.captured(outbound.EventTypeNewBid), acceptedCount)
}

func TestPlaceBidRetryExhaustion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := seedActiveAuction(t, store, "100", time.Hour)

	svc := NewBidService(BidServiceParams{
		Auctions:    store.Auctions(),
		Ledger:      &conflictingBidLedger{BidLedger: store.Bids()},
		Broadcaster: &captureBroadcaster{},
		RetryLimit:  3,
		Logger:      zerolog.Nop(),
	})

	_, _, err := svc.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: a.ID,
		BidderID:  "bidder-1",
		Amount:    decimal.RequireFromString("150"),
	})
	require.ErrorIs(t, err, shared.ErrConcurrentBidConflict)

	// Nothing committed after exhaustion
	bids, err := store.Bids().ListByAuction(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Empty(t, bids)
}

// A rejected commit must leave the auction exactly as it was: no bid_count
// advance, no current_bid movement and no ledger row. The whole bid lands
// through one atomic ledger commit, so the caller's error can never coexist
// with half-written state.
func TestPlaceBidLedgerFailureLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := seedActiveAuction(t, store, "100", time.Hour)

	svc := NewBidService(BidServiceParams{
		Auctions:    store.Auctions(),
		Ledger:      &failingBidLedger{BidLedger: store.Bids()},
		Broadcaster: &captureBroadcaster{},
		Logger:      zerolog.Nop(),
	})

	_, _, err := svc.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID:   a.ID,
		BidderID:    "bidder-1",
		BidderEmail: "bidder1@example.com",
		Amount:      decimal.RequireFromString("150"),
	})
	require.Error(t, err)

	current, getErr := store.Auctions().GetByID(ctx, a.ID)
	require.NoError(t, getErr)
	require.True(t, current.CurrentBid.Equal(decimal.RequireFromString("100")))
	require.Equal(t, 0, current.BidCount)
	require.Equal(t, a.Revision, current.Revision)

	bids, listErr := store.Bids().ListByAuction(ctx, a.ID, 10)
	require.NoError(t, listErr)
	require.Empty(t, bids)
}

func TestListBids(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newTestBidService(store, &captureBroadcaster{})
	a := seedActiveAuction(t, store, "100", time.Hour)

	for i, amount := range []string{"110", "120", "130"} {
		_, _, err := svc.PlaceBid(ctx, inbound.PlaceBidRequest{
			AuctionID:   a.ID,
			BidderID:    fmt.Sprintf("bidder-%d", i),
			BidderEmail: fmt.Sprintf("bidder-%d@example.com", i),
			Amount:      decimal.RequireFromString(amount),
		})
		require.NoError(t, err)
	}

	bids, err := svc.ListBids(ctx, a.ID, 2)
	require.NoError(t, err)
	require.Len(t, bids, 2)

	mine, err := svc.ListBidderBids(ctx, "bidder-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.True(t, mine[0].Amount.Equal(decimal.RequireFromString("120")))
}
