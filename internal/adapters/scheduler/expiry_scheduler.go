package scheduler

import (
	"context"
	"sync"
	"time"

	"auctioneer-service/internal/metrics"
	"auctioneer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultErrorBackoff  = 60 * time.Second
)

// Finalizer is the single entry point both expiry paths converge on. It must
// be idempotent: a race between a timer and the sweep produces no duplicate
// side effects.
type Finalizer interface {
	Finalize(ctx context.Context, auctionID uuid.UUID) error
}

// ExpiryScheduler arms a per-auction timer at creation time for low-latency
// expiry and runs a periodic reconciliation sweep over the store for
// liveness. Timers are lost on restart; the sweep is what recovers auctions
// whose timer never fires.
type ExpiryScheduler struct {
	auctions      outbound.AuctionStore
	finalizer     Finalizer
	sweepInterval time.Duration
	errorBackoff  time.Duration

	timers   map[uuid.UUID]*time.Timer
	timersMu sync.Mutex
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

type ExpirySchedulerParams struct {
	Auctions      outbound.AuctionStore
	Finalizer     Finalizer
	SweepInterval time.Duration
	ErrorBackoff  time.Duration
	Logger        zerolog.Logger
}

// NewExpiryScheduler creates a new expiry scheduler
func NewExpiryScheduler(params ExpirySchedulerParams) *ExpiryScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	sweepInterval := params.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	errorBackoff := params.ErrorBackoff
	if errorBackoff <= 0 {
		errorBackoff = defaultErrorBackoff
	}

	return &ExpiryScheduler{
		auctions:      params.Auctions,
		finalizer:     params.Finalizer,
		sweepInterval: sweepInterval,
		errorBackoff:  errorBackoff,
		timers:        make(map[uuid.UUID]*time.Timer),
		ctx:           ctx,
		cancel:        cancel,
		logger:        params.Logger.With().Str("component", "expiry_scheduler").Logger(),
	}
}

// Arm schedules finalization of an auction at its end time. An already
// passed end time fires immediately.
func (s *ExpiryScheduler) Arm(auctionID uuid.UUID, endTime time.Time) {
	delay := time.Until(endTime)
	if delay <= 0 {
		s.logger.Info().Str("auction_id", auctionID.String()).Msg("End time already passed, finalizing immediately")
		s.spawnFire(auctionID)
		return
	}

	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if s.stopped {
		return
	}
	if old, exists := s.timers[auctionID]; exists {
		old.Stop()
	}
	s.timers[auctionID] = time.AfterFunc(delay, func() {
		s.spawnFire(auctionID)
	})

	s.logger.Info().
		Str("auction_id", auctionID.String()).
		Time("end_time", endTime).
		Msg("Auction armed for expiry")
}

// Disarm drops the timer for an auction. The auction may still be swept; the
// finalizer's idempotence check makes a stale firing harmless.
func (s *ExpiryScheduler) Disarm(auctionID uuid.UUID) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if timer, exists := s.timers[auctionID]; exists {
		timer.Stop()
		delete(s.timers, auctionID)
		s.logger.Debug().Str("auction_id", auctionID.String()).Msg("Auction timer disarmed")
	}
}

// Start begins the reconciliation sweep loop
func (s *ExpiryScheduler) Start() {
	s.logger.Info().
		Dur("sweep_interval", s.sweepInterval).
		Msg("Starting expiry scheduler")

	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop gracefully stops the scheduler
func (s *ExpiryScheduler) Stop() {
	s.logger.Info().Msg("Stopping expiry scheduler")
	s.cancel()

	s.timersMu.Lock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.timersMu.Unlock()

	s.wg.Wait()
}

// spawnFire registers the in-flight finalization with the wait group before
// launching it. Registration happens under the same lock Stop takes to set
// stopped, so a fire can never add to the group while Stop is waiting.
func (s *ExpiryScheduler) spawnFire(auctionID uuid.UUID) {
	s.timersMu.Lock()
	if s.stopped {
		s.timersMu.Unlock()
		return
	}
	s.wg.Add(1)
	s.timersMu.Unlock()

	go s.fire(auctionID)
}

func (s *ExpiryScheduler) fire(auctionID uuid.UUID) {
	defer s.wg.Done()

	s.timersMu.Lock()
	delete(s.timers, auctionID)
	s.timersMu.Unlock()

	if err := s.finalizer.Finalize(s.ctx, auctionID); err != nil {
		// The sweep retries this auction as long as it stays active
		s.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Timer-driven finalize failed")
	}
}

// sweepLoop runs the reconciliation sweep. A failed iteration backs off to
// the longer interval; it never terminates the loop.
func (s *ExpiryScheduler) sweepLoop() {
	defer s.wg.Done()

	timer := time.NewTimer(s.sweepInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if err := s.sweep(); err != nil {
				metrics.SweepError()
				s.logger.Error().Err(err).Dur("backoff", s.errorBackoff).Msg("Sweep iteration failed, backing off")
				timer.Reset(s.errorBackoff)
			} else {
				timer.Reset(s.sweepInterval)
			}
		case <-s.ctx.Done():
			s.logger.Info().Msg("Sweep loop stopped")
			return
		}
	}
}

func (s *ExpiryScheduler) sweep() error {
	expired, err := s.auctions.ListActiveExpired(s.ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	if len(expired) > 0 {
		s.logger.Debug().Int("count", len(expired)).Msg("Sweep found expired auctions")
	}

	for _, a := range expired {
		if err := s.finalizer.Finalize(s.ctx, a.ID); err != nil {
			s.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Sweep-driven finalize failed")
		}
	}

	return nil
}
