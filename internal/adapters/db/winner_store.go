package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auctioneer-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code raised by the unique constraint
// on winners.auction_id, which enforces at most one winner per auction.
const uniqueViolation = "23505"

// WinnerStore implements the winner store on Postgres
type WinnerStore struct {
	conn *Connection
}

// NewWinnerStore creates a new winner store
func NewWinnerStore(conn *Connection) *WinnerStore {
	return &WinnerStore{conn: conn}
}

// Insert records the winner, at most once per auction
func (r *WinnerStore) Insert(ctx context.Context, w *shared.Winner) error {
	query := `
		INSERT INTO winners (auction_id, bidder_id, bidder_email, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.conn.GetDB().ExecContext(ctx, query,
		w.AuctionID,
		w.BidderID,
		w.BidderEmail,
		w.Amount,
		w.CreatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return shared.ErrWinnerExists
		}
		return fmt.Errorf("failed to insert winner: %w", err)
	}

	return nil
}

// GetByAuction retrieves the winner for an auction
func (r *WinnerStore) GetByAuction(ctx context.Context, auctionID uuid.UUID) (*shared.Winner, error) {
	query := `
		SELECT auction_id, bidder_id, bidder_email, amount, created_at
		FROM winners
		WHERE auction_id = $1
	`

	var w shared.Winner
	err := r.conn.GetDB().QueryRowContext(ctx, query, auctionID).Scan(
		&w.AuctionID,
		&w.BidderID,
		&w.BidderEmail,
		&w.Amount,
		&w.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrWinnerNotFound
		}
		return nil, fmt.Errorf("failed to get winner: %w", err)
	}

	return &w, nil
}
