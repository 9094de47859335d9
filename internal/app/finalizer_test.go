package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"auctioneer-service/internal/adapters/memory"
	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/domain/shared"
	"auctioneer-service/internal/ports/inbound"
	"auctioneer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// captureAnnouncer records announcement texts
type captureAnnouncer struct {
	mu    sync.Mutex
	texts []string
}

func (c *captureAnnouncer) Announce(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func newTestResolver(store *memory.Store, broadcaster outbound.Broadcaster, announcer outbound.Announcer) *WinnerResolver {
	return NewWinnerResolver(WinnerResolverParams{
		Auctions:    store.Auctions(),
		Ledger:      store.Bids(),
		Winners:     store.Winners(),
		Broadcaster: broadcaster,
		Announcer:   announcer,
		Logger:      zerolog.Nop(),
	})
}

func TestFinalizeWithWinner(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	broadcaster := &captureBroadcaster{}
	announcer := &captureAnnouncer{}
	resolver := newTestResolver(store, broadcaster, announcer)

	bids := newTestBidService(store, broadcaster)
	a := seedActiveAuction(t, store, "100", time.Hour)

	for _, in := range []struct{ bidder, amount string }{
		{"alice", "150"},
		{"bob", "200"},
	} {
		_, _, err := bids.PlaceBid(ctx, inbound.PlaceBidRequest{
			AuctionID:   a.ID,
			BidderID:    in.bidder,
			BidderEmail: in.bidder + "@example.com",
			Amount:      decimal.RequireFromString(in.amount),
		})
		require.NoError(t, err)
	}

	require.NoError(t, resolver.Finalize(ctx, a.ID))

	ended, err := store.Auctions().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, auction.StatusEnded, ended.Status)

	winner, err := store.Winners().GetByAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "bob", winner.BidderID)
	require.True(t, winner.Amount.Equal(decimal.RequireFromString("200")))

	events := broadcaster.captured(outbound.EventTypeAuctionEnded)
	require.Len(t, events, 1)
	data, ok := events[0].Data.(outbound.AuctionEndedData)
	require.True(t, ok)
	require.NotNil(t, data.Winner)
	require.Equal(t, "bob", data.Winner.BidderID)

	require.Len(t, announcer.texts, 1)
	require.Contains(t, announcer.texts[0], "bob@example.com")
}

func TestFinalizeNoBids(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	broadcaster := &captureBroadcaster{}
	resolver := newTestResolver(store, broadcaster, nil)
	a := seedActiveAuction(t, store, "100", time.Hour)

	require.NoError(t, resolver.Finalize(ctx, a.ID))

	ended, err := store.Auctions().GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, auction.StatusEnded, ended.Status)

	_, err = store.Winners().GetByAuction(ctx, a.ID)
	require.ErrorIs(t, err, shared.ErrWinnerNotFound)

	// The end event still goes out, with a null winner
	events := broadcaster.captured(outbound.EventTypeAuctionEnded)
	require.Len(t, events, 1)
	data, ok := events[0].Data.(outbound.AuctionEndedData)
	require.True(t, ok)
	require.Nil(t, data.Winner)
}

// A second Finalize on an already ended auction must change nothing and
// emit nothing. The sweep and the per-auction timer can both reach the
// same auction; only one of them does the work.
func TestFinalizeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	broadcaster := &captureBroadcaster{}
	resolver := newTestResolver(store, broadcaster, nil)

	bids := newTestBidService(store, broadcaster)
	a := seedActiveAuction(t, store, "100", time.Hour)
	_, _, err := bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID:   a.ID,
		BidderID:    "alice",
		BidderEmail: "alice@example.com",
		Amount:      decimal.RequireFromString("150"),
	})
	require.NoError(t, err)

	require.NoError(t, resolver.Finalize(ctx, a.ID))
	firstRevision := mustGetAuction(t, store, a.ID).Revision

	require.NoError(t, resolver.Finalize(ctx, a.ID))
	require.NoError(t, resolver.Finalize(ctx, a.ID))

	require.Equal(t, firstRevision, mustGetAuction(t, store, a.ID).Revision)
	require.Len(t, broadcaster.captured(outbound.EventTypeAuctionEnded), 1)
}

func TestFinalizeConcurrent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	broadcaster := &captureBroadcaster{}
	resolver := newTestResolver(store, broadcaster, nil)

	bids := newTestBidService(store, broadcaster)
	a := seedActiveAuction(t, store, "100", time.Hour)
	_, _, err := bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID:   a.ID,
		BidderID:    "alice",
		BidderEmail: "alice@example.com",
		Amount:      decimal.RequireFromString("150"),
	})
	require.NoError(t, err)

	const finalizers = 10
	errs := make(chan error, finalizers)
	var wg sync.WaitGroup
	for i := 0; i < finalizers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- resolver.Finalize(ctx, a.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, auction.StatusEnded, mustGetAuction(t, store, a.ID).Status)
	require.Len(t, broadcaster.captured(outbound.EventTypeAuctionEnded), 1)

	winner, err := store.Winners().GetByAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", winner.BidderID)
}

func TestFinalizeCancelledAuctionIsNoop(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	broadcaster := &captureBroadcaster{}
	resolver := newTestResolver(store, broadcaster, nil)
	a := seedActiveAuction(t, store, "100", time.Hour)

	status := auction.StatusCancelled
	_, err := store.Auctions().ConditionalUpdate(ctx, a.ID, a.Revision, outbound.AuctionChange{
		Status:    &status,
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, resolver.Finalize(ctx, a.ID))

	require.Equal(t, auction.StatusCancelled, mustGetAuction(t, store, a.ID).Status)
	require.Empty(t, broadcaster.captured(outbound.EventTypeAuctionEnded))
}

// A bid that lands between the finalizer's read and its write moves the
// revision; the finalizer rereads and the winner reflects the late bid.
func TestFinalizePicksUpLastMomentBid(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	broadcaster := &captureBroadcaster{}

	bids := newTestBidService(store, broadcaster)
	a := seedActiveAuction(t, store, "100", time.Hour)
	_, _, err := bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID:   a.ID,
		BidderID:    "alice",
		BidderEmail: "alice@example.com",
		Amount:      decimal.RequireFromString("150"),
	})
	require.NoError(t, err)

	sneak := &sneakyAuctionStore{
		AuctionStore: store.Auctions(),
		betweenReadAndWrite: func() {
			_, _, err := bids.PlaceBid(ctx, inbound.PlaceBidRequest{
				AuctionID:   a.ID,
				BidderID:    "bob",
				BidderEmail: "bob@example.com",
				Amount:      decimal.RequireFromString("300"),
			})
			require.NoError(t, err)
		},
	}

	resolver := NewWinnerResolver(WinnerResolverParams{
		Auctions:    sneak,
		Ledger:      store.Bids(),
		Winners:     store.Winners(),
		Broadcaster: broadcaster,
		Logger:      zerolog.Nop(),
	})

	require.NoError(t, resolver.Finalize(ctx, a.ID))

	winner, err := store.Winners().GetByAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "bob", winner.BidderID)
	require.True(t, winner.Amount.Equal(decimal.RequireFromString("300")))
}

// sneakyAuctionStore runs a hook once between the finalizer's read and its
// conditional write, forcing exactly one revision mismatch
type sneakyAuctionStore struct {
	outbound.AuctionStore
	betweenReadAndWrite func()
	fired               bool
}

func (s *sneakyAuctionStore) ConditionalUpdate(ctx context.Context, id uuid.UUID, expectedRevision int64, change outbound.AuctionChange) (*auction.Auction, error) {
	if !s.fired && s.betweenReadAndWrite != nil {
		s.fired = true
		s.betweenReadAndWrite()
	}
	return s.AuctionStore.ConditionalUpdate(ctx, id, expectedRevision, change)
}

func mustGetAuction(t *testing.T, store *memory.Store, id uuid.UUID) *auction.Auction {
	t.Helper()
	a, err := store.Auctions().GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}
