package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const maxRateLimitEntries = 100000

// RateLimiter is a per-IP sliding window limiter.
type RateLimiter struct {
	mu     sync.Mutex
	store  map[string][]time.Time
	window time.Duration
	max    int
	now    func() time.Time
}

func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		store:  make(map[string][]time.Time),
		window: window,
		max:    max,
		now:    time.Now,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, resetIn := rl.check(clientIP(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetIn))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error":   "Too many requests. Please slow down.",
				"resetIn": resetIn,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) check(ip string) (allowed bool, remaining int, resetIn int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	filtered := rl.recent(rl.store[ip], now)

	if len(filtered) >= rl.max {
		resetSec := int(filtered[0].Add(rl.window).Sub(now).Seconds()) + 1
		rl.store[ip] = filtered
		return false, 0, resetSec
	}

	if _, known := rl.store[ip]; !known && len(rl.store) >= maxRateLimitEntries {
		return false, 0, int(rl.window.Seconds())
	}

	filtered = append(filtered, now)
	rl.store[ip] = filtered
	return true, rl.max - len(filtered), 0
}

func (rl *RateLimiter) recent(requests []time.Time, now time.Time) []time.Time {
	windowStart := now.Add(-rl.window)
	filtered := requests[:0]
	for _, t := range requests {
		if t.After(windowStart) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// Cleanup drops idle entries every interval until ctx is done.
func (rl *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, requests := range rl.store {
		filtered := rl.recent(requests, now)
		if len(filtered) == 0 {
			delete(rl.store, ip)
		} else {
			rl.store[ip] = filtered
		}
	}
}

func (rl *RateLimiter) entries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.store)
}

// clientIP expects chi's RealIP middleware to have already rewritten
// RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
