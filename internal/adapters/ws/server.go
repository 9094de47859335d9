package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"auctioneer-service/internal/config"
	"auctioneer-service/internal/metrics"
	"auctioneer-service/internal/ports/inbound"
	"auctioneer-service/internal/ports/outbound"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Server exposes the WebSocket endpoint together with health and metrics
type Server struct {
	httpServer *http.Server
	handler    *WsHandler
	logger     zerolog.Logger
}

type ServerParams struct {
	Config      *config.Config
	Lifecycle   inbound.LifecycleService
	Bids        inbound.BidService
	Broadcaster outbound.Broadcaster
	Identity    outbound.IdentityProvider
	Logger      zerolog.Logger
}

func NewServer(params ServerParams) *Server {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  params.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: params.Config.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	handler := NewHandler(WsHandlerParams{
		Upgrader:    upgrader,
		Lifecycle:   params.Lifecycle,
		Bids:        params.Bids,
		Broadcaster: params.Broadcaster,
		Identity:    params.Identity,
		Logger:      params.Logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.HandleWebSocket)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"clients": handler.GetConnectedClients(),
		})
	})

	addr := fmt.Sprintf("%s:%s", params.Config.Server.Host, params.Config.Server.Port)
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		handler: handler,
		logger:  params.Logger.With().Str("component", "ws_server").Logger(),
	}
}

// Start blocks serving connections until the listener is closed
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("WebSocket server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws server: %w", err)
	}
	return nil
}

// Stop drains in-flight connections within the context deadline
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down WebSocket server")
	return s.httpServer.Shutdown(ctx)
}
