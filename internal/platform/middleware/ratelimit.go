package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// RateLimitConfig holds rate limiting configuration. IdleTTL bounds how long
// an unused key keeps its limiter; zero means ten minutes.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	IdleTTL           time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleTTL:           10 * time.Minute,
	}
}

type keyLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterStore holds one limiter per rate key and drops keys idle for
// longer than ttl.
type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*keyLimiter
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &limiterStore{
		limiters: make(map[string]*keyLimiter),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *limiterStore) get(key string) (*rate.Limiter, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.ttl {
		for k, l := range s.limiters {
			if now.Sub(l.seen) >= s.ttl {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}

	l, ok := s.limiters[key]
	if !ok {
		l = &keyLimiter{lim: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = l
	}
	l.seen = now
	return l.lim, now
}

func (s *limiterStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// rateKey buckets authenticated callers by tenant so one clinic cannot
// starve another, and anonymous callers by IP.
func rateKey(c echo.Context) string {
	if actor, ok := tenancy.FromContext(c.Request().Context()); ok && actor.HasTenant() {
		return "tenant:" + actor.TenantID.String()
	}
	return "ip:" + c.RealIP()
}

// retryAfter is the whole seconds until lim can admit one more request at now.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return 1
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	if secs := int(math.Ceil(d.Seconds())); secs > 1 {
		return secs
	}
	return 1
}

// RateLimit returns a rate limiting middleware. Mount it after
// authentication so tenant keys are available.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newLimiterStore(cfg), cfg)
}

func rateLimit(store *limiterStore, cfg RateLimitConfig) echo.MiddlewareFunc {
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lim, now := store.get(rateKey(c))
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			if !lim.AllowN(now, 1) {
				h.Set("Retry-After", strconv.Itoa(retryAfter(lim, now)))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			h.Set("X-RateLimit-Remaining", strconv.Itoa(int(lim.TokensAt(now))))
			return next(c)
		}
	}
}
