package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"microcraft/internal/config"
	"microcraft/internal/logger"
)

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for real-time updates.
type Server struct {
	engine      EngineInterface
	cfg         config.ServerConfig
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *RateLimiter
	httpServer  *http.Server
	log         *logrus.Entry
}

// NewServer creates a new API server. seats may be nil to leave every
// faction open; outputs are reported under /api/stats.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// This enables testing by allowing the server to be constructed without
// starting goroutines or opening network listeners.
//
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(engine EngineInterface, cfg config.ServerConfig, seats *SeatManager, outputs map[string]StatsSource) *Server {
	// One limiter guards HTTP and websocket so a faction's command budget
	// is shared across both
	limiter := NewRateLimiter(RateLimitFromConfig(cfg))
	s := &Server{
		engine:      engine,
		cfg:         cfg,
		rateLimiter: limiter,
		wsHub:       NewWebSocketHub(engine, seats, NewOriginPolicy(cfg.AllowedOrigins), limiter),
		log:         logger.Component("api"),
	}

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Seats:       seats,
		Hub:         s.wsHub,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.AllowedOrigins,
		Outputs:     outputs,
	})

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins the HTTP server AND starts background workers.
// This is the ONLY method that starts goroutines or opens network listeners.
// It blocks until Shutdown and then returns nil.
func (s *Server) Start() error {
	// Start background workers NOW, not in constructor
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(time.Duration(s.cfg.SnapshotInterval) * time.Millisecond)

	s.log.WithField("addr", s.httpServer.Addr).Info("🌐 API server starting")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
// Use this in integration tests instead of calling Start().
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests, closes websockets and stops the
// background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	s.log.Info("🛑 API server stopped")
	return nil
}
