package hub

import (
	"context"
	"testing"

	"auctioneer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestHub() *NotificationHub {
	return NewNotificationHub(NotificationHubParams{Logger: zerolog.Nop()})
}

func TestHubPublishDeliversToSubscribers(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	auctionID := uuid.New()
	otherID := uuid.New()

	ch1 := make(chan outbound.Event, 1)
	ch2 := make(chan outbound.Event, 1)
	other := make(chan outbound.Event, 1)
	require.NoError(t, h.Subscribe(ctx, auctionID, "sub-1", ch1))
	require.NoError(t, h.Subscribe(ctx, auctionID, "sub-2", ch2))
	require.NoError(t, h.Subscribe(ctx, otherID, "sub-3", other))

	event := outbound.Event{Type: outbound.EventTypeNewBid, AuctionID: auctionID}
	require.NoError(t, h.Publish(ctx, auctionID, event))

	require.Equal(t, event.Type, (<-ch1).Type)
	require.Equal(t, event.Type, (<-ch2).Type)

	// Subscribers of other auctions see nothing
	select {
	case <-other:
		t.Fatal("event leaked to a subscriber of another auction")
	default:
	}
}

func TestHubPublishNoSubscribers(t *testing.T) {
	h := newTestHub()
	err := h.Publish(context.Background(), uuid.New(), outbound.Event{Type: outbound.EventTypeNewBid})
	require.NoError(t, err)
}

// A subscriber with a full channel must not block the publisher; it is
// dropped so one slow reader cannot stall broadcasts for everyone else.
func TestHubDropsFullSubscriber(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	auctionID := uuid.New()

	full := make(chan outbound.Event) // unbuffered, nobody reading
	healthy := make(chan outbound.Event, 2)
	require.NoError(t, h.Subscribe(ctx, auctionID, "stuck", full))
	require.NoError(t, h.Subscribe(ctx, auctionID, "healthy", healthy))
	require.Equal(t, 2, h.SubscriberCount(auctionID))

	event := outbound.Event{Type: outbound.EventTypeNewBid, AuctionID: auctionID}
	require.NoError(t, h.Publish(ctx, auctionID, event))

	require.Equal(t, 1, h.SubscriberCount(auctionID))
	require.Len(t, healthy, 1)

	// The healthy subscriber keeps receiving
	require.NoError(t, h.Publish(ctx, auctionID, event))
	require.Len(t, healthy, 2)
}

func TestHubDropsClosedSubscriber(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	auctionID := uuid.New()

	closed := make(chan outbound.Event, 1)
	close(closed)
	require.NoError(t, h.Subscribe(ctx, auctionID, "gone", closed))

	require.NoError(t, h.Publish(ctx, auctionID, outbound.Event{Type: outbound.EventTypeNewBid}))
	require.Equal(t, 0, h.SubscriberCount(auctionID))
}

func TestHubUnsubscribe(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	auctionID := uuid.New()

	ch := make(chan outbound.Event, 1)
	require.NoError(t, h.Subscribe(ctx, auctionID, "sub-1", ch))
	require.NoError(t, h.Unsubscribe(ctx, auctionID, "sub-1"))
	require.Equal(t, 0, h.SubscriberCount(auctionID))

	// Unsubscribing an unknown subscriber is a no-op
	require.NoError(t, h.Unsubscribe(ctx, auctionID, "sub-1"))
	require.NoError(t, h.Unsubscribe(ctx, uuid.New(), "nobody"))
}

func TestHubResubscribeReplacesChannel(t *testing.T) {
	ctx := context.Background()
	h := newTestHub()
	auctionID := uuid.New()

	old := make(chan outbound.Event, 1)
	fresh := make(chan outbound.Event, 1)
	require.NoError(t, h.Subscribe(ctx, auctionID, "sub-1", old))
	require.NoError(t, h.Subscribe(ctx, auctionID, "sub-1", fresh))
	require.Equal(t, 1, h.SubscriberCount(auctionID))

	require.NoError(t, h.Publish(ctx, auctionID, outbound.Event{Type: outbound.EventTypeNewBid}))
	require.Len(t, fresh, 1)
	require.Len(t, old, 0)
}
