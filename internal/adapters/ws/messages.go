package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"auctioneer-service/internal/domain/shared"
	"auctioneer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MessageType string

const (
	// Client to Server message types
	MessageTypeSubscribe      MessageType = "subscribe"
	MessageTypeUnsubscribe    MessageType = "unsubscribe"
	MessageTypePlaceBid       MessageType = "place_bid"
	MessageTypeCreateAuction  MessageType = "create_auction"
	MessageTypeUpdateAuction  MessageType = "update_auction"
	MessageTypeCancelAuction  MessageType = "cancel_auction"
	MessageTypeGetAuction     MessageType = "get_auction"
	MessageTypeListAuctions   MessageType = "list_auctions"
	MessageTypeListBids       MessageType = "list_bids"
	MessageTypeListMyBids     MessageType = "list_my_bids"
	MessageTypePing           MessageType = "ping"

	// Server to Client message types
	MessageTypeNewBid           MessageType = "new_bid"
	MessageTypeAuctionUpdate    MessageType = "auction_update"
	MessageTypeAuctionEnded     MessageType = "auction_ended"
	MessageTypeAuctionCancelled MessageType = "auction_cancelled"
	MessageTypeBidAccepted      MessageType = "bid_accepted"
	MessageTypeError            MessageType = "error"
	MessageTypePong             MessageType = "pong"
)

// ClientMessage is the envelope for messages from client to server. Data is
// decoded per message type by the handler.
type ClientMessage struct {
	Type      MessageType     `json:"type"`
	AuctionID *uuid.UUID      `json:"auction_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	Type      MessageType `json:"type"`
	AuctionID *uuid.UUID  `json:"auction_id,omitempty"`
	Data      any         `json:"data,omitempty"`
	Error     *string     `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// PlaceBidData is the payload of a place_bid message
type PlaceBidData struct {
	Amount decimal.Decimal `json:"amount"`
}

// ListData is the payload of list_auctions and list_bids messages
type ListData struct {
	Status *string `json:"status,omitempty"`
	Limit  int     `json:"limit,omitempty"`
}

func NewServerMessage(msgType MessageType) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Timestamp: time.Now().Unix(),
	}
}

func NewErrorMessage(err string, auctionID *uuid.UUID) *ServerMessage {
	return &ServerMessage{
		Type:      MessageTypeError,
		AuctionID: auctionID,
		Error:     &err,
		Timestamp: time.Now().Unix(),
	}
}

// NewEventMessage converts a broadcast event into the ws envelope
func NewEventMessage(event outbound.Event) *ServerMessage {
	return &ServerMessage{
		Type:      MessageType(event.Type),
		AuctionID: &event.AuctionID,
		Data:      event.Data,
		Timestamp: time.Now().Unix(),
	}
}

// ParseClientMessage parses a JSON message from client
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse client message: %w", err)
	}

	if msg.Type == "" {
		return nil, shared.ErrMessageTypeRequired
	}

	return &msg, nil
}

func (m *ClientMessage) validateAuctionID() error {
	if m.AuctionID == nil || *m.AuctionID == uuid.Nil {
		return shared.ErrAuctionIDRequired
	}
	return nil
}

// Validate validates a client message envelope
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe,
		MessageTypeGetAuction, MessageTypeCancelAuction,
		MessageTypeUpdateAuction, MessageTypeListBids:
		return m.validateAuctionID()

	case MessageTypePlaceBid:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
		var data PlaceBidData
		if err := json.Unmarshal(m.Data, &data); err != nil || !data.Amount.IsPositive() {
			return shared.ErrInvalidAmount
		}
		return nil

	case MessageTypeCreateAuction:
		if len(m.Data) == 0 {
			return shared.ErrMinimumBidRequired
		}
		return nil

	case MessageTypeListAuctions, MessageTypeListMyBids, MessageTypePing:
		return nil

	default:
		return shared.ErrUnknownMessageType
	}
}
