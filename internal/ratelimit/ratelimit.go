package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"deyn.app/cloud/internal/logger"
)

type RateLimit interface {
	Allow(key string) bool
}

type window struct {
	count int
	start time.Time
}

// FixedWindowLimiter allows maxRequests per key in each window. A key's
// window starts with its first request.
type FixedWindowLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	requests map[string]*window
}

func New(maxRequests int, interval time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		maxRequests: maxRequests,
		window:      interval,
		now:         time.Now,
		requests:    make(map[string]*window),
	}
}

func (rl *FixedWindowLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w := rl.requests[key]

	if w == nil || now.Sub(w.start) > rl.window {
		if rl.maxRequests == 0 {
			return false
		}
		rl.requests[key] = &window{count: 1, start: now}
		rl.sweep(now)
		return true
	}

	if w.count >= rl.maxRequests {
		return false
	}
	w.count++
	return true
}

// sweep drops expired windows so idle clients do not accumulate.
func (rl *FixedWindowLimiter) sweep(now time.Time) {
	if len(rl.requests) < 1024 {
		return
	}
	for key, w := range rl.requests {
		if now.Sub(w.start) > rl.window {
			delete(rl.requests, key)
		}
	}
}

func (rl *FixedWindowLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.requests)
}

// Middleware rejects requests over the limit with 429. Requests are keyed by
// client IP.
func Middleware(limiter RateLimit, retryAfter time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if limiter.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("Rate limit exceeded", map[string]interface{}{
				"client_ip": ip,
				"path":      r.URL.Path,
			})
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
		})
	}
}

// ClientIP returns the host part of RemoteAddr. Proxy headers are only
// honoured when the server runs chi's RealIP ahead of this, which it does
// only when TRUST_PROXY_HEADERS is set.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
