package app

import (
	"context"
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

func newTestLifecycle(store *memory.Store, broadcaster outbound.Broadcaster) *LifecycleService {
	return NewLifecycleService(LifecycleServiceParams{
		Auctions:    store.Auctions(),
		Broadcaster: broadcaster,
		Logger:      zerolog.Nop(),
	})
}

func TestCreateAuction(t *testing.T) {
	ctx := context.Background()
	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	tests := []struct {
		name        string
		req         inbound.CreateAuctionRequest
		expectedErr error
	}{
		{
			name: "valid",
			req: inbound.CreateAuctionRequest{
				Title:      "Vintage guitar",
				MinimumBid: decimal.RequireFromString("100"),
				EndTime:    future,
			},
		},
		{
			name: "missing_title",
			req: inbound.CreateAuctionRequest{
				MinimumBid: decimal.RequireFromString("100"),
				EndTime:    future,
			},
			expectedErr: shared.ErrTitleRequired,
		},
		{
			name: "non_positive_minimum",
			req: inbound.CreateAuctionRequest{
				Title:      "Vintage guitar",
				MinimumBid: decimal.Zero,
				EndTime:    future,
			},
			expectedErr: shared.ErrInvalidMinimum,
		},
		{
			name: "malformed_end_time",
			req: inbound.CreateAuctionRequest{
				Title:      "Vintage guitar",
				MinimumBid: decimal.RequireFromString("100"),
				EndTime:    "tomorrow",
			},
			expectedErr: shared.ErrInvalidEndTime,
		},
		{
			name: "past_end_time",
			req: inbound.CreateAuctionRequest{
				Title:      "Vintage guitar",
				MinimumBid: decimal.RequireFromString("100"),
				EndTime:    time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
			},
			expectedErr: shared.ErrInvalidEndTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			svc := newTestLifecycle(store, &captureBroadcaster{})

			created, err := svc.CreateAuction(ctx, tt.req)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, auction.StatusActive, created.Status)
			require.True(t, created.CurrentBid.Equal(created.MinimumBid))
			require.Equal(t, 0, created.BidCount)
			require.Equal(t, int64(1), created.Revision)

			stored, err := store.Auctions().GetByID(ctx, created.ID)
			require.NoError(t, err)
			require.Equal(t, created.ID, stored.ID)
		})
	}
}

func TestUpdateAuction(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	broadcaster := &captureBroadcaster{}
	svc := newTestLifecycle(store, broadcaster)
	a := seedActiveAuction(t, store, "100", time.Hour)

	title := "Refinished vintage guitar"
	updated, err := svc.UpdateAuction(ctx, inbound.UpdateAuctionRequest{
		AuctionID: a.ID,
		Title:     &title,
	})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.Equal(t, a.Revision+1, updated.Revision)
	require.Len(t, broadcaster.captured(outbound.EventTypeAuctionUpdate), 1)

	t.Run("unknown_auction", func(t *testing.T) {
		_, err := svc.UpdateAuction(ctx, inbound.UpdateAuctionRequest{
			AuctionID: uuid.New(),
			Title:     &title,
		})
		require.ErrorIs(t, err, shared.ErrAuctionNotFound)
	})

	t.Run("malformed_end_time", func(t *testing.T) {
		bad := "next week"
		_, err := svc.UpdateAuction(ctx, inbound.UpdateAuctionRequest{
			AuctionID: a.ID,
			EndTime:   &bad,
		})
		require.ErrorIs(t, err, shared.ErrInvalidEndTime)
	})

	// current_bid stays >= minimum_bid, so a raise past the standing bid
	// is rejected instead of applied
	t.Run("minimum_above_current_bid", func(t *testing.T) {
		bids := newTestBidService(store, broadcaster)
		_, _, err := bids.PlaceBid(ctx, inbound.PlaceBidRequest{
			AuctionID:   a.ID,
			BidderID:    "alice",
			BidderEmail: "alice@example.com",
			Amount:      decimal.RequireFromString("150"),
		})
		require.NoError(t, err)

		tooHigh := decimal.RequireFromString("500")
		_, err = svc.UpdateAuction(ctx, inbound.UpdateAuctionRequest{
			AuctionID:  a.ID,
			MinimumBid: &tooHigh,
		})
		require.ErrorIs(t, err, shared.ErrInvalidMinimum)

		// A raise that stays at or below the standing bid is fine
		withinBid := decimal.RequireFromString("150")
		updated, err := svc.UpdateAuction(ctx, inbound.UpdateAuctionRequest{
			AuctionID:  a.ID,
			MinimumBid: &withinBid,
		})
		require.NoError(t, err)
		require.True(t, updated.MinimumBid.Equal(withinBid))
	})
}

func TestCancelAuction(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	broadcaster := &captureBroadcaster{}
	svc := newTestLifecycle(store, broadcaster)
	a := seedActiveAuction(t, store, "100", time.Hour)

	cancelled, err := svc.CancelAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, auction.StatusCancelled, cancelled.Status)
	require.Len(t, broadcaster.captured(outbound.EventTypeAuctionCancelled), 1)

	// Cancelling twice fails on the status check, not silently
	_, err = svc.CancelAuction(ctx, a.ID)
	require.ErrorIs(t, err, shared.ErrAuctionNotActive)
}

func TestListAuctions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newTestLifecycle(store, &captureBroadcaster{})

	seedActiveAuction(t, store, "100", time.Hour)
	b := seedActiveAuction(t, store, "200", time.Hour)

	_, err := svc.CancelAuction(ctx, b.ID)
	require.NoError(t, err)

	all, err := svc.ListAuctions(ctx, inbound.ListAuctionsRequest{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	active := auction.StatusActive
	onlyActive, err := svc.ListAuctions(ctx, inbound.ListAuctionsRequest{Status: &active})
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
}
