package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/internal/server/response"
)

// visitorTTL is how long an idle client keeps its bucket.
const visitorTTL = 10 * time.Minute

// RateLimiter implements fixed window rate limiting per client IP. Buckets
// live in a go-cache so idle clients expire without a dedicated goroutine.
type RateLimiter struct {
	create   sync.Mutex
	visitors *gocache.Cache
	limit    int           // requests per window
	window   time.Duration // window length
	logger   *zerolog.Logger
}

// visitor tracks rate limit state for a single IP.
type visitor struct {
	mu        sync.Mutex
	tokens    int
	lastReset time.Time
}

// NewRateLimiter creates a new rate limiter.
// limit is requests per minute per IP.
func NewRateLimiter(limit int, logger *zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		visitors: gocache.New(visitorTTL, visitorTTL/2),
		limit:    limit,
		window:   time.Minute,
		logger:   logger,
	}
}

// getVisitor returns or creates a visitor for the IP and refreshes its TTL.
func (rl *RateLimiter) getVisitor(ip string) *visitor {
	if v, ok := rl.visitors.Get(ip); ok {
		rl.visitors.Set(ip, v, gocache.DefaultExpiration)
		return v.(*visitor)
	}

	rl.create.Lock()
	defer rl.create.Unlock()
	if v, ok := rl.visitors.Get(ip); ok {
		return v.(*visitor)
	}
	v := &visitor{tokens: rl.limit, lastReset: time.Now()}
	rl.visitors.Set(ip, v, gocache.DefaultExpiration)
	return v
}

// allow checks if a request from the IP is allowed. The second return value
// is the time until the window resets.
func (rl *RateLimiter) allow(ip string) (bool, time.Duration) {
	v := rl.getVisitor(ip)

	v.mu.Lock()
	defer v.mu.Unlock()

	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.limit
		v.lastReset = time.Now()
	}

	if v.tokens > 0 {
		v.tokens--
		return true, 0
	}
	return false, rl.window - time.Since(v.lastReset)
}

// Visitors returns the number of tracked clients.
func (rl *RateLimiter) Visitors() int {
	return rl.visitors.ItemCount()
}

// clientIP prefers the first X-Forwarded-For hop, then the remote host.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimit middleware limits requests per IP address.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			ok, retry := rl.allow(ip)
			if !ok {
				rl.logger.Warn().
					Str("ip", ip).
					Str("path", r.URL.Path).
					Msg("Rate limit exceeded")

				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				response.RateLimited(w, "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
