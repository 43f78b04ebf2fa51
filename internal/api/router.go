package api

import (
	"net/http"
	"time"

	"microcraft/internal/game"
	"microcraft/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// EngineInterface defines the engine methods used by the API.
// This interface enables mocking for tests without spinning up the tick loop.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// Snapshot returns the latest immutable snapshot (never nil once started)
	Snapshot() *game.Snapshot
	// Submit queues a command for the next tick
	Submit(cmd game.Command) error
	// Stats summarizes the latest snapshot
	Stats() game.EngineStats
	// Subscribe registers an event consumer; cancel closes the channel
	Subscribe(buffer int) (<-chan []game.Event, func())
}

// StatsSource is any output component that reports counters, such as the
// frame writer or the event log.
type StatsSource interface {
	GetStats() map[string]interface{}
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
// This struct is designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: mockEngine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	        CommandsPerSecond: 1000,
//	        CommandBurst:      1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the simulation engine (required)
	Engine EngineInterface

	// Seats guards faction access. If nil, any client may act for any faction.
	Seats *SeatManager

	// Hub serves /ws. If nil, the websocket route is not mounted.
	Hub *WebSocketHub

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *RateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, only localhost is allowed.
	CORSOrigins []string

	// Outputs are reported under /api/stats, keyed by name.
	Outputs map[string]StatsSource

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine  EngineInterface
	seats   *SeatManager
	outputs map[string]StatsSource
	limiter *RateLimiter
	hub     *WebSocketHub
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// Apart from the rate limiter's cleanup goroutine (when none is passed in)
// it opens no listeners and starts no workers, so it is safe to use in
// tests with httptest.NewServer.
//
// Example:
//
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/stats")
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	// CORS configuration
	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	h := &routerHandlers{
		engine:  cfg.Engine,
		seats:   cfg.Seats,
		outputs: cfg.Outputs,
		limiter: rateLimiter,
		hub:     cfg.Hub,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", h.handleGetSnapshot)
		r.Get("/stats", h.handleGetStats)
		r.Post("/commands", h.handlePostCommand)

		// Seats
		r.Get("/seats", h.handleGetSeats)
		r.Post("/seats", h.handleClaimSeat)
		r.Delete("/seats", h.handleReleaseSeat)
	})

	if cfg.Hub != nil {
		r.Get("/ws", cfg.Hub.HandleWebSocket)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

// metricsMiddleware records latency per route pattern, not per raw path,
// to keep label cardinality bounded.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordRequest(r.Method, pattern, status, time.Since(start))
	})
}
