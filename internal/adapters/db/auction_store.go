package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/domain/shared"
	"auctioneer-service/internal/ports/outbound"

	"github.com/google/uuid"
)

const auctionColumns = `id, title, description, minimum_bid, current_bid, bid_count, end_time, status, revision, created_at, updated_at`

// AuctionStore implements the auction store interface on Postgres
type AuctionStore struct {
	conn *Connection
}

// NewAuctionStore creates a new auction store
func NewAuctionStore(conn *Connection) *AuctionStore {
	return &AuctionStore{conn: conn}
}

// Insert creates a new auction record
func (r *AuctionStore) Insert(ctx context.Context, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.conn.GetDB().ExecContext(ctx, query,
		a.ID,
		a.Title,
		a.Description,
		a.MinimumBid,
		a.CurrentBid,
		a.BidCount,
		a.EndTime,
		a.Status,
		a.Revision,
		a.CreatedAt,
		a.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}

	return nil
}

// GetByID retrieves an auction by ID
func (r *AuctionStore) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	a, err := scanAuction(r.conn.GetDB().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}

	return a, nil
}

// List retrieves auctions, newest first, with an optional status filter.
// A limit of zero or less means no limit.
func (r *AuctionStore) List(ctx context.Context, status *auction.Status, limit int) ([]*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions`

	var args []interface{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.conn.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// ConditionalUpdate applies change guarded by expectedRevision. The revision
// check in the WHERE clause is what makes the write compare-and-swap: it
// succeeds only if no other transaction moved the record since the read.
func (r *AuctionStore) ConditionalUpdate(ctx context.Context, id uuid.UUID, expectedRevision int64, change outbound.AuctionChange) (*auction.Auction, error) {
	set := "revision = revision + 1, updated_at = $3"
	args := []interface{}{id, expectedRevision, change.UpdatedAt}

	next := func(v interface{}) int {
		args = append(args, v)
		return len(args)
	}

	if change.Status != nil {
		set += fmt.Sprintf(", status = $%d", next(*change.Status))
	}
	if change.Title != nil {
		set += fmt.Sprintf(", title = $%d", next(*change.Title))
	}
	if change.Description != nil {
		set += fmt.Sprintf(", description = $%d", next(*change.Description))
	}
	if change.MinimumBid != nil {
		set += fmt.Sprintf(", minimum_bid = $%d", next(*change.MinimumBid))
	}
	if change.EndTime != nil {
		set += fmt.Sprintf(", end_time = $%d", next(*change.EndTime))
	}

	query := `
		UPDATE auctions
		SET ` + set + `
		WHERE id = $1 AND revision = $2
		RETURNING ` + auctionColumns

	a, err := scanAuction(r.conn.GetDB().QueryRowContext(ctx, query, args...))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update auction: %w", err)
	}

	// No row matched: either the auction is gone or the revision moved
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, shared.ErrRevisionMismatch
}

// ListActiveExpired retrieves active auctions whose end time has passed
func (r *AuctionStore) ListActiveExpired(ctx context.Context, now time.Time) ([]*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE status = 'active' AND end_time <= $1
		ORDER BY end_time ASC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired auctions: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// Delete removes an auction record
func (r *AuctionStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.conn.GetDB().ExecContext(ctx, `DELETE FROM auctions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete auction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return shared.ErrAuctionNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*auction.Auction, error) {
	var a auction.Auction
	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Description,
		&a.MinimumBid,
		&a.CurrentBid,
		&a.BidCount,
		&a.EndTime,
		&a.Status,
		&a.Revision,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAuctions(rows *sql.Rows) ([]*auction.Auction, error) {
	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}

	return auctions, nil
}
