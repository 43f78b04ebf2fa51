package api

import (
	"net"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"microcraft/internal/config"
	"microcraft/internal/logger"
)

const localDebugAddr = "127.0.0.1:6060"

// NewDebugHandler builds the debug mux: pprof, Prometheus metrics and a
// health check, optionally behind basic auth.
func NewDebugHandler(cfg config.ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.DebugUser != "" {
		return basicAuthMiddleware(cfg.DebugUser, cfg.DebugPass, mux)
	}
	return mux
}

// StartDebugServer starts the internal observability server
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS
func StartDebugServer(cfg config.ObservabilityConfig) error {
	log := logger.Component("debug")
	if !cfg.DebugEnabled {
		log.Info("📊 Debug server disabled")
		return nil
	}

	addr := debugAddr(cfg.DebugAddr)
	if addr != cfg.DebugAddr {
		// Only allow external binding if explicitly enabled via env
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") == "true" {
			addr = cfg.DebugAddr
		} else {
			log.WithField("requested", cfg.DebugAddr).Warn("⚠️ Debug server forced to localhost for security")
		}
	}

	handler := NewDebugHandler(cfg)
	go func() {
		log.WithField("addr", addr).Info("📊 Debug server starting")
		log.Infof("   - pprof:   http://%s/debug/pprof/", addr)
		log.Infof("   - metrics: http://%s/metrics", addr)

		if err := http.ListenAndServe(addr, handler); err != nil {
			log.WithError(err).Warn("⚠️ Debug server error")
		}
	}()

	return nil
}

// debugAddr keeps loopback addresses and replaces anything else
func debugAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return localDebugAddr
	}
	if host == "localhost" {
		return addr
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return addr
	}
	return localDebugAddr
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
