package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/teemow/workspace-agent/internal/instrumentation"
)

const (
	// DefaultRateLimit is the sustained number of requests per second per IP.
	DefaultRateLimit = 5

	// DefaultRateLimitBurst is the burst size per IP.
	DefaultRateLimitBurst = 20

	limiterCleanupInterval = 5 * time.Minute
	limiterIdleTimeout     = 10 * time.Minute
)

// RateLimitConfig configures per-IP rate limiting. A non-positive
// RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int

	// TrustProxy makes the limiter key on X-Forwarded-For and X-Real-IP.
	// Enable only behind a proxy that sets them.
	TrustProxy bool
}

// RateLimiter limits requests per client IP with a token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int

	trustProxy bool
	metrics    *instrumentation.Metrics

	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter and starts its cleanup loop.
func NewRateLimiter(config RateLimitConfig, metrics *instrumentation.Metrics) *RateLimiter {
	burst := config.Burst
	if burst <= 0 {
		burst = DefaultRateLimitBurst
	}

	rl := &RateLimiter{
		limiters:   make(map[string]*visitor),
		limit:      rate.Limit(config.RequestsPerSecond),
		burst:      burst,
		trustProxy: config.TrustProxy,
		metrics:    metrics,
		stop:       make(chan struct{}),
	}
	go rl.cleanupInactiveLimiters()
	return rl
}

// Allow reports whether a request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	v, ok := rl.limiters[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	return v.limiter.Allow()
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupInactiveLimiters() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.removeIdle(time.Now())
		}
	}
}

func (rl *RateLimiter) removeIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.limiters {
		if now.Sub(v.lastSeen) > limiterIdleTimeout {
			delete(rl.limiters, ip)
		}
	}
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r, rl.trustProxy)
		if !rl.Allow(ip) {
			rl.metrics.RecordRateLimited(r.Context(), instrumentation.RouteLabel(r.URL.Path))
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP address from the request.
// Proxy headers are only read when trustProxy is set.
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	return extractIPFromAddr(r.RemoteAddr)
}

// extractIPFromAddr strips the port from an "IP:port" address, IPv6 included.
func extractIPFromAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
