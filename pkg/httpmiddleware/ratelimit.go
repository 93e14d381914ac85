package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// DefaultMaxKeys bounds the number of tracked clients when
// RateLimitConfig.MaxKeys is zero.
const DefaultMaxKeys = 100_000

// overflowKey is the shared bucket for new clients once MaxKeys is reached.
const overflowKey = "overflow"

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the maximum number of requests allowed per window.
	Max int
	// Window is the duration of each sliding window.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request. Keys must not be
	// chosen freely by the client, or rotating them escapes the limit.
	// Defaults to ClientIP(false).
	KeyFunc func(*http.Request) string
	// Skip exempts matching requests from counting.
	Skip func(*http.Request) bool
	// MaxKeys caps the tracked keys. Past it, unseen keys share one bucket.
	MaxKeys int
}

// entry tracks request counts across two adjacent windows for the sliding
// window algorithm.
type entry struct {
	prevCount float64
	prevStart time.Time
	currCount float64
	currStart time.Time
}

type rateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	entries map[string]*entry
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP(false)
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultMaxKeys
	}
	return &rateLimiter{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

// allow records a request for key and reports whether it fits the limit,
// along with the remaining budget and the window reset time.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[key]
	if !ok {
		if len(rl.entries) >= rl.cfg.MaxKeys {
			rl.evictLocked(now)
		}
		if len(rl.entries) >= rl.cfg.MaxKeys {
			key = overflowKey
			e = rl.entries[key]
		}
		if e == nil {
			e = &entry{currStart: now}
			rl.entries[key] = e
		}
	}

	if now.Sub(e.currStart) >= rl.cfg.Window {
		e.prevCount = e.currCount
		e.prevStart = e.currStart
		e.currCount = 0
		e.currStart = now.Truncate(rl.cfg.Window)
		if now.Sub(e.prevStart) >= 2*rl.cfg.Window {
			e.prevCount = 0
		}
	}

	// Weight the previous window by its overlap with the sliding window.
	elapsed := now.Sub(e.currStart)
	overlap := max(1.0-elapsed.Seconds()/rl.cfg.Window.Seconds(), 0)
	effective := e.prevCount*overlap + e.currCount
	resetAt = e.currStart.Add(rl.cfg.Window)

	if effective >= float64(rl.cfg.Max) {
		return 0, resetAt, false
	}

	e.currCount++
	return max(int(float64(rl.cfg.Max)-effective-1), 0), resetAt, true
}

func (rl *rateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.evictLocked(now)
}

// evictLocked removes entries whose windows have fully expired.
func (rl *rateLimiter) evictLocked(now time.Time) {
	for key, e := range rl.entries {
		if now.Sub(e.currStart) >= 2*rl.cfg.Window {
			delete(rl.entries, key)
		}
	}
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// startCleanup evicts expired entries every two windows until ctx is done.
func (rl *rateLimiter) startCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * rl.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.cleanup(now)
			}
		}
	}()
}

// RateLimit returns a middleware that enforces a per-key sliding window rate
// limit. Over the limit it answers 429 with Retry-After. Every counted
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset.
//
// Stale entries are only dropped when MaxKeys is reached; use
// RateLimitWithCleanup for periodic eviction.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimitMiddleware(newRateLimiter(cfg))
}

// RateLimitWithCleanup is like RateLimit but also evicts expired entries in
// the background until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	rl.startCleanup(ctx)
	return rateLimitMiddleware(rl)
}

func rateLimitMiddleware(rl *rateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.cfg.Skip != nil && rl.cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := rl.cfg.KeyFunc(r)
			remaining, resetAt, allowed := rl.allow(key, time.Now())

			w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(rl.cfg.Max))
			w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(remaining))
			w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				retryAfter := max(time.Until(resetAt), 0)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				zctx.From(r.Context()).Debug("Rate limited", zap.String("key", key))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ExemptPaths exempts CORS preflights and the given paths, typically the
// health endpoints, from rate limiting.
func ExemptPaths(paths ...string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			return true
		}
		_, ok := set[r.URL.Path]
		return ok
	}
}

// ClientIP keys requests by client address. With trustProxy the first
// X-Forwarded-For entry, then X-Real-IP, is used when it parses as an IP;
// otherwise only RemoteAddr counts, since forwarding headers are set by the
// client.
func ClientIP(trustProxy bool) func(*http.Request) string {
	return func(r *http.Request) string {
		if trustProxy {
			if ip := forwardedIP(r); ip != "" {
				return ip
			}
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

func forwardedIP(r *http.Request) string {
	candidate := r.Header.Get("X-Forwarded-For")
	if i := strings.IndexByte(candidate, ','); i >= 0 {
		candidate = candidate[:i]
	}
	if candidate == "" {
		candidate = r.Header.Get("X-Real-IP")
	}
	ip := net.ParseIP(strings.TrimSpace(candidate))
	if ip == nil {
		return ""
	}
	return ip.String()
}
