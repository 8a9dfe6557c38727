package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, perMinute, burst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: perMinute, BurstSize: burst, CleanupInterval: time.Minute})
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiterBasic(t *testing.T) {
	rl := newTestLimiter(t, 5, 2)

	for i := 0; i < 7; i++ {
		allowed, remaining := rl.Allow("client")
		require.True(t, allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 6-i, remaining)
	}

	allowed, remaining := rl.Allow("client")
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)

	allowed, _ = rl.Allow("other")
	assert.True(t, allowed, "clients are limited independently")
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := newTestLimiter(t, 2, 0)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("c")
	rl.Allow("c")
	allowed, _ := rl.Allow("c")
	require.False(t, allowed)

	now = now.Add(61 * time.Second)
	allowed, _ = rl.Allow("c")
	assert.True(t, allowed)
}

func TestRateLimiterResetAndCleanup(t *testing.T) {
	rl := newTestLimiter(t, 1, 0)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	rl.Reset("a")
	allowed, _ := rl.Allow("a")
	assert.True(t, allowed)

	now = now.Add(2 * time.Minute)
	rl.cleanupExpired()
	assert.Empty(t, rl.clients)
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{})
	assert.Equal(t, 60, rl.Limit())
	rl.Stop()
	rl.Stop()
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.1.1.1:80", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.3"}, "1.1.1.1:80", "10.0.0.3"},
		{"remote addr", nil, "192.168.1.5:5555", "192.168.1.5"},
		{"remote addr without port", nil, "192.168.1.5", "192.168.1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, getClientIP(req))
		})
	}
}

func TestPathRateLimitMiddleware(t *testing.T) {
	prl := NewPathRateLimiter()
	t.Cleanup(prl.Stop)
	prl.SetPathLimit("/api/sessions", RateLimitConfig{RequestsPerMinute: 1, BurstSize: 0})

	handler := PathRateLimitMiddleware(prl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.1.1.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	first := do(http.MethodPost, "/api/sessions")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := do(http.MethodPost, "/api/sessions")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), KindRateLimited)

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/sessions/x").Code, "GET is not limited")
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/api/embed/encode").Code, "unregistered path")
}

func TestLimiterForPathPrefersLongestPrefix(t *testing.T) {
	prl := NewPathRateLimiter()
	t.Cleanup(prl.Stop)
	prl.SetPathLimit("/api", RateLimitConfig{RequestsPerMinute: 100})
	prl.SetPathLimit("/api/sessions", RateLimitConfig{RequestsPerMinute: 3})

	limiter, ok := prl.LimiterForPath("/api/sessions/abc/files")
	require.True(t, ok)
	assert.Equal(t, 3, limiter.Limit())

	_, ok = prl.LimiterForPath("/health")
	assert.False(t, ok)
}
