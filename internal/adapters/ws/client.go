package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auctioneer-service/internal/config"
	"auctioneer-service/internal/domain/shared"
	"auctioneer-service/internal/ports/outbound"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WsClient is one authenticated websocket connection. Inbound messages are
// handled on a per-client worker pool; outbound traffic flows through a
// buffered send channel so a slow connection never blocks the hub.
type WsClient struct {
	id        string
	principal shared.Principal
	conn      *websocket.Conn
	sendChan  chan *ServerMessage
	eventChan chan outbound.Event

	subscribed map[uuid.UUID]bool
	subMu      sync.Mutex

	ctx        context.Context
	cancel     context.CancelFunc
	handler    *WsHandler
	workerPool *pond.WorkerPool
	stopped    bool
	mu         sync.Mutex
	logger     zerolog.Logger
}

type WsClientParams struct {
	Principal shared.Principal
	Conn      *websocket.Conn
	Handler   *WsHandler
	Logger    zerolog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(params WsClientParams) *WsClient {
	ctx, cancel := context.WithCancel(context.Background())

	pool := pond.New(
		config.WSMaxWorkers,
		config.WSMaxCapacity,
		pond.Context(ctx),
		pond.Strategy(pond.Balanced()),
	)

	id := uuid.New().String()
	return &WsClient{
		id:         id,
		principal:  params.Principal,
		conn:       params.Conn,
		sendChan:   make(chan *ServerMessage, 100),
		eventChan:  make(chan outbound.Event, 100),
		subscribed: make(map[uuid.UUID]bool),
		ctx:        ctx,
		cancel:     cancel,
		handler:    params.Handler,
		workerPool: pool,
		logger: params.Logger.With().
			Str("client_id", id).
			Str("bidder_id", params.Principal.ID).
			Logger(),
	}
}

func (c *WsClient) Start() {
	go c.messageSender()
	go c.messageReceiver()
	go c.eventForwarder()
}

func (c *WsClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true

	c.cancel()
	c.conn.Close()

	if c.workerPool != nil {
		c.workerPool.Stop()
	}
}

// Send queues a message for the client
func (c *WsClient) Send(msg *ServerMessage) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("client is stopped")
	}
	c.mu.Unlock()

	select {
	case c.sendChan <- msg:
		return nil
	case <-time.After(100 * time.Millisecond):
		return fmt.Errorf("client send channel is full")
	}
}

// trackSubscription remembers an auction subscription for disconnect cleanup
func (c *WsClient) trackSubscription(auctionID uuid.UUID) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribed[auctionID] = true
}

func (c *WsClient) dropSubscription(auctionID uuid.UUID) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.subscribed, auctionID)
}

// subscriptions returns a snapshot of the auctions this client follows
func (c *WsClient) subscriptions() []uuid.UUID {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	out := make([]uuid.UUID, 0, len(c.subscribed))
	for id := range c.subscribed {
		out = append(out, id)
	}
	return out
}

func (c *WsClient) messageSender() {
	for {
		select {
		case msg := <-c.sendChan:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Error().Err(err).Msg("Failed to send message to client")
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// eventForwarder turns broadcast events into ws messages for this client
func (c *WsClient) eventForwarder() {
	for {
		select {
		case event := <-c.eventChan:
			if err := c.Send(NewEventMessage(event)); err != nil {
				c.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to forward event to client")
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *WsClient) messageReceiver() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.Error().Err(err).Msg("WebSocket read error for client")
				} else {
					c.logger.Info().Str("error", err.Error()).Msg("WebSocket connection closed for client")
				}
				c.cancel()
				return
			}

			c.workerPool.Submit(func() {
				if err := c.handleMessage(message); err != nil {
					c.logger.Warn().Err(err).Msg("Failed to handle client message")
					if sendErr := c.Send(NewErrorMessage(err.Error(), nil)); sendErr != nil {
						c.logger.Debug().Err(sendErr).Msg("Could not deliver error message")
					}
				}
			})
		}
	}
}

func (c *WsClient) handleMessage(data []byte) error {
	msg, err := ParseClientMessage(data)
	if err != nil {
		return fmt.Errorf("invalid message format: %w", err)
	}

	if err := msg.Validate(); err != nil {
		return fmt.Errorf("message validation failed: %w", err)
	}

	if msg.Type == MessageTypePing {
		return c.Send(NewServerMessage(MessageTypePong))
	}

	if c.handler == nil {
		return fmt.Errorf("handler not available")
	}
	return c.handler.HandleClientMessage(c, msg)
}
