package auth

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vidtube-serverless/internal/httpx"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginRateLimiter allows maxHits login attempts per window for each client IP.
type LoginRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	window    time.Duration
	maxMemory int
	// trustedHops is the number of proxies in front of the service that append
	// to X-Forwarded-For. Zero ignores the header.
	trustedHops int
	now         func() time.Time
}

func NewLoginRateLimiter(maxHits int, window time.Duration, trustedHops int) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		visitors:  make(map[string]*visitor),
		limit:     rate.Every(window / time.Duration(maxHits)),
		burst:     maxHits,
		window:    window,
		maxMemory: 5000,
		now:       time.Now,

		trustedHops: max(trustedHops, 0),
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(clientIP(r, l.trustedHops))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			httpx.WriteError(w, r, httpx.TooManyRequests("too many login attempts"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *LoginRateLimiter) allow(ip string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	reservation := v.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		if delay < time.Second {
			delay = time.Second
		}
		return false, delay
	}

	if len(l.visitors) > l.maxMemory {
		threshold := now.Add(-l.window)
		for key, value := range l.visitors {
			if value.lastSeen.Before(threshold) {
				delete(l.visitors, key)
			}
		}
	}

	return true, 0
}

// clientIP reads the address written by the outermost trusted proxy. Entries
// to its left are client-supplied and ignored.
func clientIP(r *http.Request, trustedHops int) string {
	if trustedHops > 0 {
		if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
			hops := strings.Split(forwarded, ",")
			index := len(hops) - trustedHops
			if index < 0 {
				index = 0
			}
			if ip := strings.TrimSpace(hops[index]); ip != "" {
				return ip
			}
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
