package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"

	"github.com/redmonkez12/todo-app/internal/httputil"
	"github.com/redmonkez12/todo-app/internal/logging"
)

// UserConfig sets the per-user token bucket
type UserConfig struct {
	Rate            rate.Limit
	Burst           int
	CleanupInterval time.Duration
}

// DefaultUserConfig allows 120 requests per minute per user
func DefaultUserConfig() UserConfig {
	return UserConfig{
		Rate:            rate.Limit(120.0 / 60.0),
		Burst:           120,
		CleanupInterval: 5 * time.Minute,
	}
}

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// UserLimiter keeps one token bucket per key (normally the authenticated user id)
type UserLimiter struct {
	config   UserConfig
	limiters *xsync.MapOf[string, *userLimiter]
	now      func() time.Time
	stopCh   chan struct{}
}

// NewUserLimiter starts a background loop dropping idle buckets. Call Stop when done.
func NewUserLimiter(config UserConfig) *UserLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultUserConfig().CleanupInterval
	}
	ul := &UserLimiter{
		config:   config,
		limiters: xsync.NewMapOf[string, *userLimiter](),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go ul.cleanupLoop()
	return ul
}

func (ul *UserLimiter) Stop() {
	close(ul.stopCh)
}

// Allow takes one token from key's bucket
func (ul *UserLimiter) Allow(key string) bool {
	now := ul.now()
	var limiter *rate.Limiter
	ul.limiters.Compute(key, func(old *userLimiter, loaded bool) (*userLimiter, bool) {
		if !loaded {
			old = &userLimiter{limiter: rate.NewLimiter(ul.config.Rate, ul.config.Burst)}
		}
		old.lastAccess = now
		limiter = old.limiter
		return old, false
	})
	return limiter.AllowN(now, 1)
}

// Len is the number of tracked keys
func (ul *UserLimiter) Len() int {
	return ul.limiters.Size()
}

// Middleware rejects requests over the limit with 429. Requests for which
// keyFunc returns false pass through untouched.
func (ul *UserLimiter) Middleware(keyFunc func(r *http.Request) (string, bool)) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := keyFunc(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if !ul.Allow(key) {
				logging.GetLoggerFromContext(r.Context()).Warn("user rate limit exceeded", "key", key)
				writeRateLimitResponse(w, ul.config.Rate)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (ul *UserLimiter) cleanupLoop() {
	ticker := time.NewTicker(ul.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ul.cleanup()
		case <-ul.stopCh:
			return
		}
	}
}

// cleanup drops buckets idle for more than two cleanup intervals
func (ul *UserLimiter) cleanup() {
	cutoff := ul.now().Add(-2 * ul.config.CleanupInterval)
	ul.limiters.Range(func(key string, _ *userLimiter) bool {
		ul.limiters.Compute(key, func(old *userLimiter, loaded bool) (*userLimiter, bool) {
			return old, !loaded || old.lastAccess.Before(cutoff)
		})
		return true
	})
}

// writeRateLimitResponse sets Retry-After to the time needed to refill one token
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfter := 1
	if r > 0 {
		retryAfter = max(int(math.Ceil(1.0/float64(r))), 1)
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
}
