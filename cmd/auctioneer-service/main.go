package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"auctioneer-service/internal/adapters/announce"
	"auctioneer-service/internal/adapters/db"
	"auctioneer-service/internal/adapters/hub"
	"auctioneer-service/internal/adapters/identity"
	"auctioneer-service/internal/adapters/memory"
	"auctioneer-service/internal/adapters/redis"
	"auctioneer-service/internal/adapters/scheduler"
	"auctioneer-service/internal/adapters/ws"
	"auctioneer-service/internal/app"
	"auctioneer-service/internal/config"
	"auctioneer-service/internal/domain/auction"
	"auctioneer-service/internal/ports/outbound"
)

func main() {

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	initLogging(cfg)

	log.Info().Msg("Starting Auctioneer Service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Select storage backend
	var (
		auctionStore outbound.AuctionStore
		bidLedger    outbound.BidLedger
		winnerStore  outbound.WinnerStore
	)
	if cfg.Database.Storage == "postgres" {
		dbConn, err := db.NewConnection(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbConn.Close()

		auctionStore = db.NewAuctionStore(dbConn)
		bidLedger = db.NewBidLedger(dbConn)
		winnerStore = db.NewWinnerStore(dbConn)
		log.Info().Msg("Postgres storage initialized")
	} else {
		store := memory.NewStore()
		auctionStore = store.Auctions()
		bidLedger = store.Bids()
		winnerStore = store.Winners()
		log.Info().Msg("In-memory storage initialized")
	}

	// The notification hub fans events out to local subscribers; the Redis
	// relay extends that fan-out across instances when Redis is configured
	notificationHub := hub.NewNotificationHub(hub.NotificationHubParams{
		Logger: log.Logger,
	})

	var broadcaster outbound.Broadcaster = notificationHub
	var relay *hub.RedisRelay

	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(cfg)
		if err := redis.Ping(redisClient); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Msg("Redis connection established")

		relay = hub.NewRedisRelay(hub.RedisRelayParams{
			Hub:         notificationHub,
			RedisClient: redisClient,
			Logger:      log.Logger,
		})
		broadcaster = relay
	}

	// Collaborators
	var identityProvider outbound.IdentityProvider
	if cfg.Identity.URL != "" {
		identityProvider = identity.NewHTTPProvider(identity.HTTPProviderParams{
			Config: cfg,
			Logger: log.Logger,
		})
	} else {
		log.Warn().Msg("No identity endpoint configured, accepting tokens as bidder IDs")
		identityProvider = identity.NewLocalProvider(log.Logger)
	}

	announcer := announce.NewWebhookAnnouncer(announce.WebhookAnnouncerParams{
		Config: cfg,
		Logger: log.Logger,
	})

	// Business services
	winnerResolver := app.NewWinnerResolver(app.WinnerResolverParams{
		Auctions:    auctionStore,
		Ledger:      bidLedger,
		Winners:     winnerStore,
		Broadcaster: broadcaster,
		Announcer:   announcer,
		RetryLimit:  cfg.Lifecycle.BidRetryLimit,
		Logger:      log.Logger,
	})

	expiryScheduler := scheduler.NewExpiryScheduler(scheduler.ExpirySchedulerParams{
		Auctions:      auctionStore,
		Finalizer:     winnerResolver,
		SweepInterval: cfg.Lifecycle.SweepInterval,
		ErrorBackoff:  cfg.Lifecycle.SweepErrorBackoff,
		Logger:        log.Logger,
	})

	lifecycleService := app.NewLifecycleService(app.LifecycleServiceParams{
		Auctions:    auctionStore,
		Broadcaster: broadcaster,
		Scheduler:   expiryScheduler,
		RetryLimit:  cfg.Lifecycle.BidRetryLimit,
		Logger:      log.Logger,
	})

	bidService := app.NewBidService(app.BidServiceParams{
		Auctions:    auctionStore,
		Ledger:      bidLedger,
		Broadcaster: broadcaster,
		RetryLimit:  cfg.Lifecycle.BidRetryLimit,
		Logger:      log.Logger,
	})

	log.Info().Msg("Business services initialized")

	expiryScheduler.Start()
	rearmActiveAuctions(ctx, auctionStore, expiryScheduler)
	log.Info().Msg("Expiry scheduler started")

	wsServer := ws.NewServer(ws.ServerParams{
		Config:      cfg,
		Lifecycle:   lifecycleService,
		Bids:        bidService,
		Broadcaster: broadcaster,
		Identity:    identityProvider,
		Logger:      log.Logger,
	})

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting WebSocket server")
		if err := wsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start WebSocket server")
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	expiryScheduler.Stop()
	log.Info().Msg("Expiry scheduler stopped")

	if relay != nil {
		relay.Close()
	}

	if err := wsServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping WebSocket server")
	}

	log.Info().Msg("Graceful shutdown completed")
}

// rearmActiveAuctions restores expiry timers for auctions that were
// active when the process last stopped. Auctions already past their end
// time are picked up by the scheduler's first sweep.
func rearmActiveAuctions(ctx context.Context, auctions outbound.AuctionStore, s *scheduler.ExpiryScheduler) {
	status := auction.StatusActive
	active, err := auctions.List(ctx, &status, 0)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list active auctions for timer recovery")
		return
	}

	now := time.Now().UTC()
	armed := 0
	for _, a := range active {
		if a.EndTime.After(now) {
			s.Arm(a.ID, a.EndTime)
			armed++
		}
	}
	if armed > 0 {
		log.Info().Int("count", armed).Msg("Restored expiry timers for active auctions")
	}
}

func initLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.DefaultContextLogger = &log.Logger
}
