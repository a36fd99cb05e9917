package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 3}, nil)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("192.0.2.1"), "request %d", i)
	}
	assert.False(t, rl.Allow("192.0.2.1"))

	// Buckets are per IP.
	assert.True(t, rl.Allow("192.0.2.2"))
}

func TestRateLimiter_DefaultBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1}, nil)
	defer rl.Stop()
	assert.Equal(t, DefaultRateLimitBurst, rl.burst)
}

func TestRateLimiter_RemoveIdle(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}, nil)
	defer rl.Stop()

	rl.Allow("192.0.2.1")
	rl.removeIdle(time.Now())
	assert.Len(t, rl.limiters, 1)

	rl.removeIdle(time.Now().Add(limiterIdleTimeout + time.Second))
	assert.Empty(t, rl.limiters)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1}, nil)
	rl.Stop()
	rl.Stop()
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{name: "remote addr", remoteAddr: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "ipv6 remote addr", remoteAddr: "[2001:db8::1]:5555", want: "2001:db8::1"},
		{name: "remote addr without port", remoteAddr: "192.0.2.1", want: "192.0.2.1"},
		{
			name:       "ignores forwarded for without trust",
			remoteAddr: "192.0.2.1:5555",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "192.0.2.1",
		},
		{
			name:       "first forwarded for",
			remoteAddr: "192.0.2.1:5555",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:       "real ip",
			remoteAddr: "192.0.2.1:5555",
			headers:    map[string]string{"X-Real-IP": "203.0.113.8"},
			trustProxy: true,
			want:       "203.0.113.8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req, tt.trustProxy))
		})
	}
}
