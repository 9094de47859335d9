package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/domain/shared"
	"auctioneer-service/internal/ports/inbound"
	"auctioneer-service/internal/ports/outbound"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WsHandler manages WebSocket connections and message routing. Callers are
// authenticated once at upgrade time; every lifecycle operation then runs
// under the resolved principal.
type WsHandler struct {
	clients   map[string]*WsClient
	clientsMu sync.RWMutex

	upgrader    websocket.Upgrader
	lifecycle   inbound.LifecycleService
	bids        inbound.BidService
	broadcaster outbound.Broadcaster
	identity    outbound.IdentityProvider
	logger      zerolog.Logger
}

type WsHandlerParams struct {
	Upgrader    websocket.Upgrader
	Lifecycle   inbound.LifecycleService
	Bids        inbound.BidService
	Broadcaster outbound.Broadcaster
	Identity    outbound.IdentityProvider
	Logger      zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:     make(map[string]*WsClient),
		upgrader:    params.Upgrader,
		lifecycle:   params.Lifecycle,
		bids:        params.Bids,
		broadcaster: params.Broadcaster,
		identity:    params.Identity,
		logger:      params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket authenticates the caller and upgrades the connection
func (h *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	principal, err := h.identity.Authenticate(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid or missing credentials", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(WsClientParams{
		Principal: *principal,
		Conn:      conn,
		Handler:   h,
		Logger:    h.logger,
	})

	h.registerClient(client)
	client.Start()

	go func() {
		<-client.ctx.Done()
		h.unregisterClient(client)
	}()

	h.logger.Info().
		Str("client_id", client.id).
		Str("bidder_id", principal.ID).
		Msg("WebSocket client connected")
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (h *WsHandler) registerClient(client *WsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[client.id] = client
}

func (h *WsHandler) unregisterClient(client *WsClient) {
	h.clientsMu.Lock()
	delete(h.clients, client.id)
	total := len(h.clients)
	h.clientsMu.Unlock()

	// Drop every hub subscription before the event channel goes away
	ctx := context.Background()
	for _, auctionID := range client.subscriptions() {
		if err := h.broadcaster.Unsubscribe(ctx, auctionID, client.id); err != nil {
			h.logger.Warn().Err(err).Str("client_id", client.id).Msg("Failed to unsubscribe disconnecting client")
		}
	}

	client.Stop()

	h.logger.Info().
		Str("client_id", client.id).
		Int("total_clients", total).
		Msg("WebSocket client disconnected")
}

// GetConnectedClients returns the number of connected clients
func (h *WsHandler) GetConnectedClients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *WsHandler) HandleClientMessage(client *WsClient, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypeSubscribe:
		return h.handleSubscribe(client, msg)
	case MessageTypeUnsubscribe:
		return h.handleUnsubscribe(client, msg)
	case MessageTypePlaceBid:
		return h.handlePlaceBid(client, msg)
	case MessageTypeCreateAuction:
		return h.handleCreateAuction(client, msg)
	case MessageTypeUpdateAuction:
		return h.handleUpdateAuction(client, msg)
	case MessageTypeCancelAuction:
		return h.handleCancelAuction(client, msg)
	case MessageTypeGetAuction:
		return h.handleGetAuction(client, msg)
	case MessageTypeListAuctions:
		return h.handleListAuctions(client, msg)
	case MessageTypeListBids:
		return h.handleListBids(client, msg)
	case MessageTypeListMyBids:
		return h.handleListMyBids(client)
	default:
		return shared.ErrUnknownMessageType
	}
}

func (h *WsHandler) handleSubscribe(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	if err := h.broadcaster.Subscribe(ctx, *msg.AuctionID, client.id, client.eventChan); err != nil {
		h.logger.Error().Err(err).Str("client_id", client.id).Str("auction_id", msg.AuctionID.String()).Msg("Failed to subscribe to auction")
		return err
	}
	client.trackSubscription(*msg.AuctionID)

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data = map[string]string{"status": "subscribed"}

	h.logger.Info().Str("client_id", client.id).Str("auction_id", msg.AuctionID.String()).Msg("Client subscribed to auction")
	return client.Send(response)
}

func (h *WsHandler) handleUnsubscribe(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	if err := h.broadcaster.Unsubscribe(ctx, *msg.AuctionID, client.id); err != nil {
		return err
	}
	client.dropSubscription(*msg.AuctionID)

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data = map[string]string{"status": "unsubscribed"}

	return client.Send(response)
}

func (h *WsHandler) handlePlaceBid(client *WsClient, msg *ClientMessage) error {
	var data PlaceBidData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return shared.ErrInvalidAmount
	}

	acceptedBid, _, err := h.bids.PlaceBid(context.Background(), inbound.PlaceBidRequest{
		AuctionID:   *msg.AuctionID,
		BidderID:    client.principal.ID,
		BidderEmail: client.principal.Email,
		Amount:      data.Amount,
	})
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	// Subscribers see the new_bid broadcast; the bidder also gets a
	// direct acknowledgement
	response := NewServerMessage(MessageTypeBidAccepted)
	response.AuctionID = msg.AuctionID
	response.Data = acceptedBid
	return client.Send(response)
}

func (h *WsHandler) handleCreateAuction(client *WsClient, msg *ClientMessage) error {
	var req inbound.CreateAuctionRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return shared.ErrMinimumBidRequired
	}

	created, err := h.lifecycle.CreateAuction(context.Background(), req)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), nil))
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = &created.ID
	response.Data = created

	h.logger.Info().Str("auction_id", created.ID.String()).Str("bidder_id", client.principal.ID).Msg("Auction created via ws")
	return client.Send(response)
}

func (h *WsHandler) handleUpdateAuction(client *WsClient, msg *ClientMessage) error {
	var req inbound.UpdateAuctionRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return shared.ErrInvalidAmount
	}
	req.AuctionID = *msg.AuctionID

	updated, err := h.lifecycle.UpdateAuction(context.Background(), req)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = &updated.ID
	response.Data = updated
	return client.Send(response)
}

func (h *WsHandler) handleCancelAuction(client *WsClient, msg *ClientMessage) error {
	cancelled, err := h.lifecycle.CancelAuction(context.Background(), *msg.AuctionID)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	response := NewServerMessage(MessageTypeAuctionCancelled)
	response.AuctionID = &cancelled.ID
	response.Data = cancelled
	return client.Send(response)
}

func (h *WsHandler) handleGetAuction(client *WsClient, msg *ClientMessage) error {
	a, err := h.lifecycle.GetAuction(context.Background(), *msg.AuctionID)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = &a.ID
	response.Data = a
	return client.Send(response)
}

func (h *WsHandler) handleListAuctions(client *WsClient, msg *ClientMessage) error {
	var data ListData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return shared.ErrUnknownMessageType
		}
	}

	req := inbound.ListAuctionsRequest{Limit: data.Limit}
	if data.Status != nil {
		status := auction.Status(*data.Status)
		req.Status = &status
	}

	auctions, err := h.lifecycle.ListAuctions(context.Background(), req)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), nil))
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.Data = map[string]any{"auctions": auctions, "count": len(auctions)}
	return client.Send(response)
}

func (h *WsHandler) handleListBids(client *WsClient, msg *ClientMessage) error {
	var data ListData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return shared.ErrUnknownMessageType
		}
	}

	bids, err := h.bids.ListBids(context.Background(), *msg.AuctionID, data.Limit)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data = map[string]any{"bids": bids, "count": len(bids)}
	return client.Send(response)
}

// handleListMyBids returns the caller's own bid history; a principal can
// never read another bidder's history through this surface
func (h *WsHandler) handleListMyBids(client *WsClient) error {
	bids, err := h.bids.ListBidderBids(context.Background(), client.principal.ID)
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), nil))
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.Data = map[string]any{"bids": bids, "count": len(bids)}
	return client.Send(response)
}
