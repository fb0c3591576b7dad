package httpx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Decision is the outcome of one rate limiter hit.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts hits per key inside a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimiter is an in-process fixed-window limiter. It suits a single
// instance; use RedisRateLimiter when several replicas share the budget.
type RateLimiter struct {
	limit    int
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
}

type visitor struct {
	count     int
	resetTime time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		visitors: map[string]*visitor{},
	}
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	v := rl.visitors[key]
	if v == nil || !now.Before(v.resetTime) {
		rl.visitors[key] = &visitor{count: 1, resetTime: now.Add(rl.window)}
		return Decision{Allowed: true, Remaining: rl.limit - 1}, nil
	}
	if v.count >= rl.limit {
		return Decision{Allowed: false, RetryAfter: v.resetTime.Sub(now)}, nil
	}
	v.count++
	return Decision{Allowed: true, Remaining: rl.limit - v.count}, nil
}

// sweep drops expired visitors at most once per window. Caller holds mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastGC) < rl.window {
		return
	}
	rl.lastGC = now
	for k, v := range rl.visitors {
		if !now.Before(v.resetTime) {
			delete(rl.visitors, k)
		}
	}
}

// RateLimit rejects requests over budget with 429. prefix namespaces the
// client key so several limiters can share one backend. When the limiter
// itself fails, failOpen decides between serving and a 503.
func RateLimit(l Limiter, prefix string, logger *slog.Logger, failOpen bool) Middleware {
	if l == nil {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), prefix+":"+clientKey(r))
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter error", "err", err, "prefix", prefix)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "rate_limiter_unavailable", "rate limiter unavailable")
				return
			}
			if !d.Allowed {
				secs := int(d.RetryAfter.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
