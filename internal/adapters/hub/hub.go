package hub

import (
	"context"
	"sync"

	"auctioneer-service/internal/metrics"
	"auctioneer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NotificationHub maintains per-auction subscriber sets and delivers
// best-effort broadcasts. The registry is owned exclusively by the hub and
// mutated only under its lock; it knows nothing about auction semantics.
type NotificationHub struct {
	subscribers map[uuid.UUID]map[string]chan<- outbound.Event
	mu          sync.RWMutex
	logger      zerolog.Logger
}

type NotificationHubParams struct {
	Logger zerolog.Logger
}

// NewNotificationHub creates a new notification hub
func NewNotificationHub(params NotificationHubParams) *NotificationHub {
	return &NotificationHub{
		subscribers: make(map[uuid.UUID]map[string]chan<- outbound.Event),
		logger:      params.Logger.With().Str("component", "notification_hub").Logger(),
	}
}

// Subscribe registers a subscriber channel for one auction's events
func (h *NotificationHub) Subscribe(ctx context.Context, auctionID uuid.UUID, subscriberID string, events chan<- outbound.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, exists := h.subscribers[auctionID]
	if !exists {
		set = make(map[string]chan<- outbound.Event)
		h.subscribers[auctionID] = set
	}
	set[subscriberID] = events

	h.logger.Debug().
		Str("subscriber_id", subscriberID).
		Str("auction_id", auctionID.String()).
		Int("subscribers", len(set)).
		Msg("Subscriber registered")
	return nil
}

// Unsubscribe removes a subscriber from one auction. Removing an unknown
// subscriber is a no-op; empty sets are pruned.
func (h *NotificationHub) Unsubscribe(ctx context.Context, auctionID uuid.UUID, subscriberID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(auctionID, subscriberID)
	return nil
}

// Publish delivers an event to all current subscribers of an auction. The
// send is non-blocking: a subscriber whose channel is full or closed is
// dropped from the registry immediately so it can never stall the engine.
func (h *NotificationHub) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	h.mu.RLock()
	targets := make(map[string]chan<- outbound.Event, len(h.subscribers[auctionID]))
	for id, ch := range h.subscribers[auctionID] {
		targets[id] = ch
	}
	h.mu.RUnlock()

	var dead []string
	for id, ch := range targets {
		if h.send(ch, event) {
			metrics.BroadcastDelivered()
		} else {
			metrics.BroadcastDropped()
			dead = append(dead, id)
		}
	}

	if len(dead) > 0 {
		h.mu.Lock()
		for _, id := range dead {
			h.removeLocked(auctionID, id)
		}
		h.mu.Unlock()
		h.logger.Warn().
			Str("auction_id", auctionID.String()).
			Int("removed", len(dead)).
			Msg("Dropped unresponsive subscribers")
	}

	return nil
}

// SubscriberCount returns the number of live subscribers for an auction
func (h *NotificationHub) SubscriberCount(auctionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[auctionID])
}

func (h *NotificationHub) send(ch chan<- outbound.Event, event outbound.Event) (ok bool) {
	// A subscriber may close its channel while disconnecting; treat the
	// resulting panic as a failed send
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case ch <- event:
		return true
	default:
		return false
	}
}

func (h *NotificationHub) removeLocked(auctionID uuid.UUID, subscriberID string) {
	set, exists := h.subscribers[auctionID]
	if !exists {
		return
	}
	if _, exists := set[subscriberID]; !exists {
		return
	}
	delete(set, subscriberID)
	if len(set) == 0 {
		delete(h.subscribers, auctionID)
	}
	h.logger.Debug().
		Str("subscriber_id", subscriberID).
		Str("auction_id", auctionID.String()).
		Msg("Subscriber removed")
}
