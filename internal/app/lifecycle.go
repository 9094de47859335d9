package app

import (
	"context"
	"errors"
	"time"

	"auctioneer-service/internal/adapters/scheduler"
	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/domain/shared"
	"auctioneer-service/internal/metrics"
	"auctioneer-service/internal/ports/inbound"
	"auctioneer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultAuctionListLimit = 50

// LifecycleService is the thin orchestrator over the stores, the scheduler
// and the broadcaster. No business rule beyond input shape validation lives
// here; bid acceptance and finalization have their own components.
type LifecycleService struct {
	auctions    outbound.AuctionStore
	broadcaster outbound.Broadcaster
	scheduler   *scheduler.ExpiryScheduler
	retryLimit  int
	logger      zerolog.Logger
}

type LifecycleServiceParams struct {
	Auctions    outbound.AuctionStore
	Broadcaster outbound.Broadcaster
	Scheduler   *scheduler.ExpiryScheduler
	RetryLimit  int
	Logger      zerolog.Logger
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(params LifecycleServiceParams) *LifecycleService {
	retryLimit := params.RetryLimit
	if retryLimit <= 0 {
		retryLimit = 5
	}
	return &LifecycleService{
		auctions:    params.Auctions,
		broadcaster: params.Broadcaster,
		scheduler:   params.Scheduler,
		retryLimit:  retryLimit,
		logger:      params.Logger.With().Str("component", "lifecycle_service").Logger(),
	}
}

// CreateAuction creates a new active auction and arms its expiry timer
func (s *LifecycleService) CreateAuction(ctx context.Context, req inbound.CreateAuctionRequest) (*auction.Auction, error) {
	s.logger.Info().
		Str("title", req.Title).
		Str("minimum_bid", req.MinimumBid.String()).
		Str("end_time", req.EndTime).
		Msg("Attempting to create auction")

	if req.Title == "" {
		return nil, shared.ErrTitleRequired
	}
	if !req.MinimumBid.IsPositive() {
		return nil, shared.ErrInvalidMinimum
	}

	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		s.logger.Warn().Err(err).Str("end_time", req.EndTime).Msg("Invalid end time format")
		return nil, shared.ErrInvalidEndTime
	}

	now := time.Now().UTC()
	if !endTime.After(now) {
		return nil, shared.ErrInvalidEndTime
	}

	a := &auction.Auction{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		MinimumBid:  req.MinimumBid,
		CurrentBid:  req.MinimumBid,
		BidCount:    0,
		EndTime:     endTime,
		Status:      auction.StatusActive,
		Revision:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.auctions.Insert(ctx, a); err != nil {
		s.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to save auction")
		return nil, err
	}

	if s.scheduler != nil {
		s.scheduler.Arm(a.ID, a.EndTime)
	}

	s.logger.Info().
		Str("auction_id", a.ID.String()).
		Time("end_time", a.EndTime).
		Msg("Auction created")
	return a, nil
}

// GetAuction retrieves an auction by ID
func (s *LifecycleService) GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
	return s.auctions.GetByID(ctx, auctionID)
}

// ListAuctions retrieves a list of auctions, newest first
func (s *LifecycleService) ListAuctions(ctx context.Context, req inbound.ListAuctionsRequest) ([]*auction.Auction, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultAuctionListLimit
	}
	return s.auctions.List(ctx, req.Status, limit)
}

// UpdateAuction patches an active auction's details and broadcasts the
// refreshed snapshot
func (s *LifecycleService) UpdateAuction(ctx context.Context, req inbound.UpdateAuctionRequest) (*auction.Auction, error) {
	var endTime *time.Time
	if req.EndTime != nil {
		parsed, err := time.Parse(time.RFC3339, *req.EndTime)
		if err != nil {
			return nil, shared.ErrInvalidEndTime
		}
		endTime = &parsed
	}
	if req.MinimumBid != nil && !req.MinimumBid.IsPositive() {
		return nil, shared.ErrInvalidMinimum
	}

	for attempt := 0; attempt < s.retryLimit; attempt++ {
		a, err := s.auctions.GetByID(ctx, req.AuctionID)
		if err != nil {
			return nil, err
		}
		if !a.IsActive() {
			return nil, shared.ErrAuctionNotActive
		}
		// current_bid never drops below minimum_bid, so a raise past the
		// standing bid is rejected rather than applied
		if req.MinimumBid != nil && req.MinimumBid.GreaterThan(a.CurrentBid) {
			return nil, shared.ErrInvalidMinimum
		}

		updated, err := s.auctions.ConditionalUpdate(ctx, a.ID, a.Revision, outbound.AuctionChange{
			Title:       req.Title,
			Description: req.Description,
			MinimumBid:  req.MinimumBid,
			EndTime:     endTime,
			UpdatedAt:   time.Now().UTC(),
		})
		if errors.Is(err, shared.ErrRevisionMismatch) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if endTime != nil && s.scheduler != nil {
			s.scheduler.Arm(updated.ID, updated.EndTime)
		}

		event := outbound.Event{
			Type:      outbound.EventTypeAuctionUpdate,
			AuctionID: updated.ID,
			Data:      updated,
		}
		if err := s.broadcaster.Publish(ctx, updated.ID, event); err != nil {
			s.logger.Error().Err(err).Str("auction_id", updated.ID.String()).Msg("Failed to broadcast auction update")
		}

		s.logger.Info().Str("auction_id", updated.ID.String()).Msg("Auction updated")
		return updated, nil
	}

	return nil, shared.ErrConcurrentBidConflict
}

// CancelAuction transitions an active auction to cancelled, broadcasts the
// cancellation and disarms the expiry timer
func (s *LifecycleService) CancelAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
	for attempt := 0; attempt < s.retryLimit; attempt++ {
		a, err := s.auctions.GetByID(ctx, auctionID)
		if err != nil {
			return nil, err
		}
		if !a.IsActive() {
			return nil, shared.ErrAuctionNotActive
		}

		status := auction.StatusCancelled
		cancelled, err := s.auctions.ConditionalUpdate(ctx, a.ID, a.Revision, outbound.AuctionChange{
			Status:    &status,
			UpdatedAt: time.Now().UTC(),
		})
		if errors.Is(err, shared.ErrRevisionMismatch) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if s.scheduler != nil {
			s.scheduler.Disarm(cancelled.ID)
		}

		metrics.AuctionFinalized("cancelled")
		event := outbound.Event{
			Type:      outbound.EventTypeAuctionCancelled,
			AuctionID: cancelled.ID,
			Data:      cancelled,
		}
		if err := s.broadcaster.Publish(ctx, cancelled.ID, event); err != nil {
			s.logger.Error().Err(err).Str("auction_id", cancelled.ID.String()).Msg("Failed to broadcast cancellation")
		}

		s.logger.Info().Str("auction_id", cancelled.ID.String()).Msg("Auction cancelled")
		return cancelled, nil
	}

	return nil, shared.ErrConcurrentBidConflict
}
