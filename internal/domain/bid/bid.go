package bid

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid represents an accepted offer against an auction. Bids are immutable
// once appended to the ledger; only bids that passed validation and the
// conditional auction update are ever recorded.
type Bid struct {
	ID          uuid.UUID       `json:"id"`
	AuctionID   uuid.UUID       `json:"auction_id"`
	BidderID    string          `json:"bidder_id"`
	BidderEmail string          `json:"bidder_email"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Outbids returns true if this bid strictly exceeds the given amount
func (b *Bid) Outbids(amount decimal.Decimal) bool {
	return b.Amount.GreaterThan(amount)
}
