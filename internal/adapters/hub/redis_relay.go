package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"auctioneer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "auction:"

// envelope is the shape relayed through Redis. Origin lets an instance skip
// its own publishes when they come back around.
type envelope struct {
	Origin    string             `json:"origin"`
	Type      outbound.EventType `json:"type"`
	AuctionID uuid.UUID          `json:"auction_id"`
	Data      json.RawMessage    `json:"data"`
}

// RedisRelay wraps the local hub with Redis pub/sub so that events published
// on one instance fan out to subscribers connected to any instance. Relay
// failures are logged and never block local delivery.
type RedisRelay struct {
	hub      *NotificationHub
	client   *redis.Client
	instance string
	pubsub   *redis.PubSub
	ctx      context.Context
	cancel   context.CancelFunc
	logger   zerolog.Logger
}

type RedisRelayParams struct {
	Hub         *NotificationHub
	RedisClient *redis.Client
	Logger      zerolog.Logger
}

// NewRedisRelay creates the relay and starts forwarding remote publishes
// into the local hub
func NewRedisRelay(params RedisRelayParams) *RedisRelay {
	ctx, cancel := context.WithCancel(context.Background())

	relay := &RedisRelay{
		hub:      params.Hub,
		client:   params.RedisClient,
		instance: uuid.New().String(),
		ctx:      ctx,
		cancel:   cancel,
		logger:   params.Logger.With().Str("component", "redis_relay").Logger(),
	}

	relay.pubsub = relay.client.PSubscribe(ctx, channelPrefix+"*")
	go relay.listen()

	return relay
}

// Subscribe delegates to the local hub
func (r *RedisRelay) Subscribe(ctx context.Context, auctionID uuid.UUID, subscriberID string, events chan<- outbound.Event) error {
	return r.hub.Subscribe(ctx, auctionID, subscriberID, events)
}

// Unsubscribe delegates to the local hub
func (r *RedisRelay) Unsubscribe(ctx context.Context, auctionID uuid.UUID, subscriberID string) error {
	return r.hub.Unsubscribe(ctx, auctionID, subscriberID)
}

// Publish delivers locally first, then relays through Redis for the other
// instances
func (r *RedisRelay) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	if err := r.hub.Publish(ctx, auctionID, event); err != nil {
		return err
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		r.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to marshal event for relay")
		return nil
	}

	env := envelope{
		Origin:    r.instance,
		Type:      event.Type,
		AuctionID: auctionID,
		Data:      data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to marshal relay envelope")
		return nil
	}

	if err := r.client.Publish(ctx, ChannelName(auctionID), payload).Err(); err != nil {
		r.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to relay event through Redis")
	}
	return nil
}

// Close stops the relay listener and its pubsub connection
func (r *RedisRelay) Close() error {
	r.cancel()
	return r.pubsub.Close()
}

func (r *RedisRelay) listen() {
	ch := r.pubsub.Channel()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				r.logger.Info().Msg("Relay channel closed")
				return
			}
			r.forward(msg)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *RedisRelay) forward(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.logger.Error().Err(err).Str("channel", msg.Channel).Msg("Failed to unmarshal relayed event")
		return
	}

	if env.Origin == r.instance {
		return
	}
	if !strings.HasPrefix(msg.Channel, channelPrefix) {
		return
	}

	event := outbound.Event{
		Type:      env.Type,
		AuctionID: env.AuctionID,
		Data:      env.Data,
	}
	if err := r.hub.Publish(r.ctx, env.AuctionID, event); err != nil {
		r.logger.Error().Err(err).Str("auction_id", env.AuctionID.String()).Msg("Failed to deliver relayed event")
	}
}

// ChannelName returns the Redis channel carrying one auction's events
func ChannelName(auctionID uuid.UUID) string {
	return fmt.Sprintf("%s%s", channelPrefix, auctionID)
}
