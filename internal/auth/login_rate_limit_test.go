package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoginRateLimiter_BlocksAfterBurstPerIP(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewLoginRateLimiter(2, time.Minute, 0)
	limiter.now = func() time.Time { return now }

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(ip string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/login", nil)
		r.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1").Code)

	blocked := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "30", blocked.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, send("10.0.0.2").Code)

	now = now.Add(30 * time.Second)
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1").Code)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(r, 1))

	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "192.0.2.1", clientIP(r, 0))
	assert.Equal(t, "203.0.113.9", clientIP(r, 1))

	r.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9, 10.0.0.1")
	assert.Equal(t, "10.0.0.1", clientIP(r, 1))
	assert.Equal(t, "203.0.113.9", clientIP(r, 2))
	assert.Equal(t, "198.51.100.7", clientIP(r, 5))
}

func TestLoginRateLimiter_IgnoresSpoofedForwardedHops(t *testing.T) {
	limiter := NewLoginRateLimiter(1, time.Minute, 1)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(spoofed string) int {
		r := httptest.NewRequest(http.MethodPost, "/login", nil)
		r.Header.Set("X-Forwarded-For", spoofed+", 203.0.113.9")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("10.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.2.2.2"))
}
