package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KindRateLimited is the error kind of a rejected request.
const KindRateLimited = "rate_limited"

var errRateLimited = errors.New("rate limit exceeded, please try again later")

// RateLimitConfig holds configuration for a rate limiter.
type RateLimitConfig struct {
	RequestsPerMinute int           // Max requests per minute (default: 60)
	BurstSize         int           // Allowed on top of RequestsPerMinute
	CleanupInterval   time.Duration // How often idle clients are dropped (default: 5m)
}

// DefaultRateLimitConfig returns the limits used by the serve command.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   5 * time.Minute,
	}
}

// RateLimiter is a per-client sliding window limiter.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRateLimiter creates a limiter and starts its cleanup loop.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.BurstSize < 0 {
		cfg.BurstSize = 0
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	rl := &RateLimiter{
		clients: make(map[string][]time.Time),
		limit:   cfg.RequestsPerMinute + cfg.BurstSize,
		window:  time.Minute,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop(cfg.CleanupInterval)
	return rl
}

// Limit is the number of requests a client may make per window.
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// Allow records a request from clientID if it is under the limit and returns
// whether it was allowed and how many requests remain.
func (rl *RateLimiter) Allow(clientID string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := rl.prune(rl.clients[clientID], now)
	if len(recent) >= rl.limit {
		rl.clients[clientID] = recent
		return false, 0
	}

	recent = append(recent, now)
	rl.clients[clientID] = recent
	return true, rl.limit - len(recent)
}

// prune drops timestamps that have left the window. Timestamps are in
// ascending order.
func (rl *RateLimiter) prune(stamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

// Reset clears the history of one client.
func (rl *RateLimiter) Reset(clientID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, clientID)
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanupExpired()
		}
	}
}

func (rl *RateLimiter) cleanupExpired() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for clientID, stamps := range rl.clients {
		if len(rl.prune(stamps, now)) == 0 {
			delete(rl.clients, clientID)
		}
	}
}

// getClientIP extracts the client IP, preferring proxy headers.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	addr := r.RemoteAddr
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[:i]
	}
	return addr
}

// PathRateLimiter applies limiters by path prefix. Paths matching no prefix
// are not limited.
type PathRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*RateLimiter
}

// NewPathRateLimiter creates an empty path limiter.
func NewPathRateLimiter() *PathRateLimiter {
	return &PathRateLimiter{limiters: make(map[string]*RateLimiter)}
}

// SetPathLimit limits requests whose path starts with pathPrefix.
func (prl *PathRateLimiter) SetPathLimit(pathPrefix string, cfg RateLimitConfig) {
	prl.mu.Lock()
	defer prl.mu.Unlock()
	if old, ok := prl.limiters[pathPrefix]; ok {
		old.Stop()
	}
	prl.limiters[pathPrefix] = NewRateLimiter(cfg)
}

// LimiterForPath returns the limiter with the longest matching prefix.
func (prl *PathRateLimiter) LimiterForPath(path string) (*RateLimiter, bool) {
	prl.mu.RLock()
	defer prl.mu.RUnlock()

	var (
		best    *RateLimiter
		bestLen = -1
	)
	for prefix, limiter := range prl.limiters {
		if strings.HasPrefix(path, prefix) && len(prefix) > bestLen {
			best, bestLen = limiter, len(prefix)
		}
	}
	return best, best != nil
}

// Stop stops all limiters.
func (prl *PathRateLimiter) Stop() {
	prl.mu.Lock()
	defer prl.mu.Unlock()
	for _, limiter := range prl.limiters {
		limiter.Stop()
	}
}

// PathRateLimitMiddleware rejects mutating requests over their path's limit.
// GET and OPTIONS requests are never limited.
func PathRateLimitMiddleware(prl *PathRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			limiter, ok := prl.LimiterForPath(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining := limiter.Allow(getClientIP(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				w.Header().Set("Retry-After", "60")
				RespondError(w, http.StatusTooManyRequests, KindRateLimited, errRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
