package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/domain/bid"
	"auctioneer-service/internal/domain/shared"
	"auctioneer-service/internal/ports/outbound"

	"github.com/google/uuid"
)

// Store holds the shared in-memory state behind the three store views. It is
// concurrency-safe and mirrors the conditional-update semantics of the
// Postgres adapters, which makes it the storage of the memory mode and of
// the package tests.
type Store struct {
	mu       sync.RWMutex
	auctions map[uuid.UUID]*auction.Auction
	bids     map[uuid.UUID][]*bid.Bid
	winners  map[uuid.UUID]*shared.Winner
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		auctions: make(map[uuid.UUID]*auction.Auction),
		bids:     make(map[uuid.UUID][]*bid.Bid),
		winners:  make(map[uuid.UUID]*shared.Winner),
	}
}

// Auctions returns the AuctionStore view
func (s *Store) Auctions() *AuctionStore { return &AuctionStore{s: s} }

// Bids returns the BidLedger view
func (s *Store) Bids() *BidLedger { return &BidLedger{s: s} }

// Winners returns the WinnerStore view
func (s *Store) Winners() *WinnerStore { return &WinnerStore{s: s} }

// AuctionStore is the auction-record view of the in-memory store
type AuctionStore struct {
	s *Store
}

// Insert creates a new auction record
func (r *AuctionStore) Insert(ctx context.Context, a *auction.Auction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	clone := *a
	r.s.auctions[a.ID] = &clone
	return nil
}

// GetByID retrieves an auction by ID
func (r *AuctionStore) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.auctions[id]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	clone := *a
	return &clone, nil
}

// List retrieves auctions, newest first, with an optional status filter
func (r *AuctionStore) List(ctx context.Context, status *auction.Status, limit int) ([]*auction.Auction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*auction.Auction
	for _, a := range r.s.auctions {
		if status != nil && a.Status != *status {
			continue
		}
		clone := *a
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ConditionalUpdate applies change guarded by expectedRevision; a successful
// write bumps the revision
func (r *AuctionStore) ConditionalUpdate(ctx context.Context, id uuid.UUID, expectedRevision int64, change outbound.AuctionChange) (*auction.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.auctions[id]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	if a.Revision != expectedRevision {
		return nil, shared.ErrRevisionMismatch
	}

	if change.Status != nil {
		a.Status = *change.Status
	}
	if change.Title != nil {
		a.Title = *change.Title
	}
	if change.Description != nil {
		a.Description = *change.Description
	}
	if change.MinimumBid != nil {
		a.MinimumBid = *change.MinimumBid
	}
	if change.EndTime != nil {
		a.EndTime = *change.EndTime
	}
	a.UpdatedAt = change.UpdatedAt
	a.Revision++

	clone := *a
	return &clone, nil
}

// ListActiveExpired retrieves active auctions whose end time has passed
func (r *AuctionStore) ListActiveExpired(ctx context.Context, now time.Time) ([]*auction.Auction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*auction.Auction
	for _, a := range r.s.auctions {
		if a.IsActive() && a.Expired(now) {
			clone := *a
			out = append(out, &clone)
		}
	}
	return out, nil
}

// Delete removes an auction record
func (r *AuctionStore) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.auctions[id]; !ok {
		return shared.ErrAuctionNotFound
	}
	delete(r.s.auctions, id)
	return nil
}

// BidLedger is the append-only bid view of the in-memory store
type BidLedger struct {
	s *Store
}

// Commit atomically appends the bid and advances the auction's bid state,
// guarded by expectedRevision. Holding the store mutex across both writes
// gives the same all-or-nothing semantics as the Postgres transaction.
func (r *BidLedger) Commit(ctx context.Context, b *bid.Bid, expectedRevision int64) (*auction.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.auctions[b.AuctionID]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	if a.Revision != expectedRevision {
		return nil, shared.ErrRevisionMismatch
	}

	a.CurrentBid = b.Amount
	a.BidCount++
	a.UpdatedAt = b.CreatedAt
	a.Revision++

	clone := *b
	r.s.bids[b.AuctionID] = append(r.s.bids[b.AuctionID], &clone)

	snapshot := *a
	return &snapshot, nil
}

// ListByAuction retrieves bids for an auction, newest first
func (r *BidLedger) ListByAuction(ctx context.Context, auctionID uuid.UUID, limit int) ([]*bid.Bid, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	bids := r.s.bids[auctionID]
	out := make([]*bid.Bid, 0, len(bids))
	for _, b := range bids {
		clone := *b
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByBidder retrieves all bids placed by a bidder, newest first
func (r *BidLedger) ListByBidder(ctx context.Context, bidderID string) ([]*bid.Bid, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*bid.Bid
	for _, bids := range r.s.bids {
		for _, b := range bids {
			if b.BidderID == bidderID {
				clone := *b
				out = append(out, &clone)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Highest retrieves the maximum-amount bid, earliest created on ties
func (r *BidLedger) Highest(ctx context.Context, auctionID uuid.UUID) (*bid.Bid, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	bids := r.s.bids[auctionID]
	if len(bids) == 0 {
		return nil, shared.ErrNoBidsFound
	}

	winning := bids[0]
	for _, b := range bids[1:] {
		if b.Outbids(winning.Amount) ||
			(b.Amount.Equal(winning.Amount) && b.CreatedAt.Before(winning.CreatedAt)) {
			winning = b
		}
	}
	clone := *winning
	return &clone, nil
}

// WinnerStore is the winner view of the in-memory store
type WinnerStore struct {
	s *Store
}

// Insert records the winner, at most once per auction
func (r *WinnerStore) Insert(ctx context.Context, w *shared.Winner) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.winners[w.AuctionID]; ok {
		return shared.ErrWinnerExists
	}
	clone := *w
	r.s.winners[w.AuctionID] = &clone
	return nil
}

// GetByAuction retrieves the winner for an auction
func (r *WinnerStore) GetByAuction(ctx context.Context, auctionID uuid.UUID) (*shared.Winner, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	w, ok := r.s.winners[auctionID]
	if !ok {
		return nil, shared.ErrWinnerNotFound
	}
	clone := *w
	return &clone, nil
}
