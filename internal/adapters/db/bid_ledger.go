package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/domain/bid"
	"auctioneer-service/internal/domain/shared"

	"github.com/google/uuid"
)

const bidColumns = `id, auction_id, bidder_id, bidder_email, amount, created_at`

// BidLedger implements the append-only bid ledger on Postgres
type BidLedger struct {
	conn *Connection
}

// NewBidLedger creates a new bid ledger
func NewBidLedger(conn *Connection) *BidLedger {
	return &BidLedger{conn: conn}
}

// Commit atomically advances the auction's bid state and appends the bid
// row in one transaction. The revision guard on the UPDATE makes the pair
// a compare-and-swap: either both writes land or neither does.
func (r *BidLedger) Commit(ctx context.Context, b *bid.Bid, expectedRevision int64) (*auction.Auction, error) {
	var updated *auction.Auction

	err := r.conn.ExecuteTransaction(func(tx *sql.Tx) error {
		query := `
			UPDATE auctions
			SET current_bid = $3, bid_count = bid_count + 1, revision = revision + 1, updated_at = $4
			WHERE id = $1 AND revision = $2
			RETURNING ` + auctionColumns + `
		`

		a, err := scanAuction(tx.QueryRowContext(ctx, query, b.AuctionID, expectedRevision, b.Amount, b.CreatedAt))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return r.guardFailure(ctx, tx, b.AuctionID)
			}
			return fmt.Errorf("failed to advance auction bid state: %w", err)
		}

		insert := `
			INSERT INTO bids (` + bidColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		if _, err := tx.ExecContext(ctx, insert,
			b.ID,
			b.AuctionID,
			b.BidderID,
			b.BidderEmail,
			b.Amount,
			b.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to append bid: %w", err)
		}

		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// guardFailure tells a missing auction apart from a revision conflict after
// the guarded UPDATE matched no row
func (r *BidLedger) guardFailure(ctx context.Context, tx *sql.Tx, auctionID uuid.UUID) error {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, auctionID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check auction existence: %w", err)
	}
	if !exists {
		return shared.ErrAuctionNotFound
	}
	return shared.ErrRevisionMismatch
}

// ListByAuction retrieves bids for an auction, newest first. A limit of
// zero or less means no limit.
func (r *BidLedger) ListByAuction(ctx context.Context, auctionID uuid.UUID, limit int) ([]*bid.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE auction_id = $1
		ORDER BY created_at DESC
	`

	args := []interface{}{auctionID}
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $2`
	}

	rows, err := r.conn.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	return collectBids(rows)
}

// ListByBidder retrieves all bids placed by a bidder, newest first
func (r *BidLedger) ListByBidder(ctx context.Context, bidderID string) ([]*bid.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE bidder_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, bidderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bidder bids: %w", err)
	}
	defer rows.Close()

	return collectBids(rows)
}

// Highest retrieves the winning candidate: maximum amount, earliest created
// on ties
func (r *BidLedger) Highest(ctx context.Context, auctionID uuid.UUID) (*bid.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, created_at ASC
		LIMIT 1
	`

	b, err := scanBid(r.conn.GetDB().QueryRowContext(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNoBidsFound
		}
		return nil, fmt.Errorf("failed to get highest bid: %w", err)
	}

	return b, nil
}

func scanBid(row rowScanner) (*bid.Bid, error) {
	var b bid.Bid
	err := row.Scan(
		&b.ID,
		&b.AuctionID,
		&b.BidderID,
		&b.BidderEmail,
		&b.Amount,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBids(rows *sql.Rows) ([]*bid.Bid, error) {
	var bids []*bid.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}

	return bids, nil
}
