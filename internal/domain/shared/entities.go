package shared

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Principal is an authenticated caller as resolved by the identity provider
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Winner is the resolved highest bid of an ended auction. At most one exists
// per auction; the store enforces uniqueness on AuctionID.
type Winner struct {
	AuctionID   uuid.UUID       `json:"auction_id"`
	BidderID    string          `json:"bidder_id"`
	BidderEmail string          `json:"bidder_email"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}
