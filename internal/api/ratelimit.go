package api

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"microcraft/internal/config"
	"microcraft/internal/game"
	"microcraft/internal/metrics"
)

var (
	ErrCommandRateLimited = errors.New("command rate limit exceeded")
	ErrIPConnectionLimit  = errors.New("too many connections from your IP")
	ErrFactionConnLimit   = errors.New("too many connections for this faction")
)

// RateLimitConfig configures request and command throttling
type RateLimitConfig struct {
	RequestsPerSecond float64       // HTTP requests per second per IP
	Burst             int           // HTTP burst per IP
	CommandsPerSecond float64       // Commands per second per faction, any transport
	CommandBurst      int           // Command burst per faction
	CleanupInterval   time.Duration // How often to clean up stale limiters
}

// DefaultRateLimitConfig returns production-safe defaults
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 20,
	Burst:             40,
	CommandsPerSecond: 10,
	CommandBurst:      20,
	CleanupInterval:   5 * time.Minute,
}

// RateLimitFromConfig builds limiter settings from the server section.
func RateLimitFromConfig(cfg config.ServerConfig) RateLimitConfig {
	rl := DefaultRateLimitConfig
	if cfg.RequestRate > 0 {
		rl.RequestsPerSecond = cfg.RequestRate
	}
	if cfg.RequestBurst > 0 {
		rl.Burst = cfg.RequestBurst
	}
	if cfg.CommandRate > 0 {
		rl.CommandsPerSecond = cfg.CommandRate
	}
	if cfg.CommandBurst > 0 {
		rl.CommandBurst = cfg.CommandBurst
	}
	return rl
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// bucketSet is one token bucket per key with allow/reject counters.
type bucketSet[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*limiterEntry
	limit   rate.Limit
	burst   int

	allowed  uint64 // atomic
	rejected uint64 // atomic
}

func newBucketSet[K comparable](perSecond float64, burst int) *bucketSet[K] {
	return &bucketSet[K]{
		entries: make(map[K]*limiterEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (b *bucketSet[K]) allow(key K) bool {
	now := time.Now()
	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.entries[key] = e
	}
	e.lastSeen = now
	ok = e.limiter.AllowN(now, 1)
	b.mu.Unlock()

	if ok {
		atomic.AddUint64(&b.allowed, 1)
	} else {
		atomic.AddUint64(&b.rejected, 1)
	}
	return ok
}

// sweep drops buckets idle since before cutoff
func (b *bucketSet[K]) sweep(cutoff time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, e := range b.entries {
		if e.lastSeen.Before(cutoff) {
			delete(b.entries, k)
		}
	}
}

func (b *bucketSet[K]) stats() map[string]uint64 {
	return map[string]uint64{
		"allowed":  atomic.LoadUint64(&b.allowed),
		"rejected": atomic.LoadUint64(&b.rejected),
	}
}

// RateLimiter throttles HTTP requests per client IP and game commands per
// faction. The command budget is shared by POST /api/commands and websocket
// frames, so a seat cannot exceed it by switching transport or address.
type RateLimiter struct {
	requests *bucketSet[string]
	commands *bucketSet[game.Faction]
	config   RateLimitConfig
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.CommandsPerSecond <= 0 {
		cfg.CommandsPerSecond = DefaultRateLimitConfig.CommandsPerSecond
		cfg.CommandBurst = DefaultRateLimitConfig.CommandBurst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &RateLimiter{
		requests: newBucketSet[string](cfg.RequestsPerSecond, cfg.Burst),
		commands: newBucketSet[game.Faction](cfg.CommandsPerSecond, cfg.CommandBurst),
		config:   cfg,
		stopChan: make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
	})
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.config.CleanupInterval * 2)
			rl.requests.sweep(cutoff)
			rl.commands.sweep(cutoff)
		}
	}
}

// Allow checks if a request from the given IP should be allowed
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.requests.allow(ip)
}

// AllowCommand spends one command token of faction f.
func (rl *RateLimiter) AllowCommand(f game.Faction) bool {
	if rl.commands.allow(f) {
		return true
	}
	metrics.RecordConnectionRejected("command_rate")
	return false
}

// Middleware returns an HTTP middleware for per-IP rate limiting
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			metrics.RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetStats returns request and command counters
func (rl *RateLimiter) GetStats() map[string]map[string]uint64 {
	return map[string]map[string]uint64{
		"requests": rl.requests.stats(),
		"commands": rl.commands.stats(),
	}
}

// GetClientIP extracts the client IP from an HTTP request, preferring proxy
// headers. X-Forwarded-For can be spoofed unless a trusted proxy sets it.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ConnectionLimiter caps concurrent websocket connections per IP and per
// faction. Slots are taken with Acquire and returned with Release.
type ConnectionLimiter struct {
	mu            sync.Mutex
	byIP          map[string]int
	byFaction     map[game.Faction]int
	maxPerIP      int
	maxPerFaction int

	rejectedIP      uint64
	rejectedFaction uint64
}

// NewConnectionLimiter creates a limiter. A limit of 0 disables that check.
func NewConnectionLimiter(maxPerIP, maxPerFaction int) *ConnectionLimiter {
	return &ConnectionLimiter{
		byIP:          make(map[string]int),
		byFaction:     make(map[game.Faction]int),
		maxPerIP:      maxPerIP,
		maxPerFaction: maxPerFaction,
	}
}

// Acquire reserves a slot for a connection from ip playing f.
func (l *ConnectionLimiter) Acquire(ip string, f game.Faction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxPerIP > 0 && l.byIP[ip] >= l.maxPerIP {
		l.rejectedIP++
		return ErrIPConnectionLimit
	}
	if l.maxPerFaction > 0 && l.byFaction[f] >= l.maxPerFaction {
		l.rejectedFaction++
		return ErrFactionConnLimit
	}
	l.byIP[ip]++
	l.byFaction[f]++
	return nil
}

// Release returns a slot taken by Acquire.
func (l *ConnectionLimiter) Release(ip string, f game.Faction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.byIP[ip] > 1 {
		l.byIP[ip]--
	} else {
		delete(l.byIP, ip)
	}
	if l.byFaction[f] > 1 {
		l.byFaction[f]--
	} else {
		delete(l.byFaction, f)
	}
}

// Counts returns the open connections of ip and of f.
func (l *ConnectionLimiter) Counts(ip string, f game.Faction) (perIP, perFaction int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byIP[ip], l.byFaction[f]
}

// GetStats returns rejection counters
func (l *ConnectionLimiter) GetStats() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]uint64{
		"rejectedIP":      l.rejectedIP,
		"rejectedFaction": l.rejectedFaction,
	}
}

// OriginPolicy decides which browser origins may open websockets.
type OriginPolicy struct {
	allowed []string
}

// NewOriginPolicy allows the given origins plus localhost on any port.
func NewOriginPolicy(origins []string) *OriginPolicy {
	return &OriginPolicy{allowed: origins}
}

// IsAllowed checks an Origin header. Requests without one come from
// non-browser clients and are allowed.
func (p *OriginPolicy) IsAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
		return true
	}
	for _, allowed := range p.allowed {
		if origin == allowed || allowed == "*" {
			return true
		}
	}
	return false
}
