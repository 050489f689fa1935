package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/serroba/shortlink/internal/kv"
	"go.uber.org/zap"
)

// Defaults allow 100 requests per client and endpoint per hour.
const (
	DefaultLimit  int64 = 100
	DefaultWindow       = time.Hour
)

// EndpointCreateURL names the link creation endpoint in rate limit keys.
const EndpointCreateURL = "create_url"

// Limiter defines the interface for rate limiting.
type Limiter interface {
	// Allow checks if a request under the given key should be allowed.
	Allow(ctx context.Context, key string) (allowed bool, err error)
}

// SlidingWindowLimiter implements rate limiting using a sliding window over
// a sorted set of request timestamps.
//
// Members are whole unix seconds, so requests from one client within the same
// second collapse into a single entry.
type SlidingWindowLimiter struct {
	store  kv.Store
	limit  int64
	window time.Duration
	now    func() time.Time
}

// Option configures a SlidingWindowLimiter.
type Option func(*SlidingWindowLimiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindowLimiter) {
		l.now = now
	}
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// Non-positive limit or window fall back to the defaults.
func NewSlidingWindowLimiter(store kv.Store, limit int64, window time.Duration, opts ...Option) *SlidingWindowLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if window < time.Second {
		window = DefaultWindow
	}

	l := &SlidingWindowLimiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now().Unix()
	windowStart := now - int64(l.window/time.Second)

	// Drop requests that fell out of the window: score < now - window.
	if err := l.store.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(windowStart, 10)); err != nil {
		return false, err
	}

	count, err := l.store.ZCard(ctx, key)
	if err != nil {
		return false, err
	}

	if count >= l.limit {
		return false, nil
	}

	member := strconv.FormatInt(now, 10)
	if err := l.store.ZAdd(ctx, key, float64(now), member); err != nil {
		return false, err
	}

	if err := l.store.Expire(ctx, key, l.window); err != nil {
		return false, err
	}

	return true, nil
}

// Limit returns the maximum number of requests per window.
func (l *SlidingWindowLimiter) Limit() int64 {
	return l.limit
}

// Window returns the window length.
func (l *SlidingWindowLimiter) Window() time.Duration {
	return l.window
}

// FailOpen wraps a Limiter so that backend failures allow the request.
// Rate limiting must never make the service unavailable.
type FailOpen struct {
	next   Limiter
	logger *zap.Logger
}

// NewFailOpen creates a fail-open decorator around next.
func NewFailOpen(next Limiter, logger *zap.Logger) *FailOpen {
	return &FailOpen{
		next:   next,
		logger: logger,
	}
}

func (f *FailOpen) Allow(ctx context.Context, key string) (bool, error) {
	allowed, err := f.next.Allow(ctx, key)
	if err != nil {
		f.logger.Warn("rate limiting disabled for request, backend error",
			zap.String("key", key),
			zap.Error(err),
		)

		return true, nil
	}

	return allowed, nil
}

// Compile-time checks.
var (
	_ Limiter = (*SlidingWindowLimiter)(nil)
	_ Limiter = (*FailOpen)(nil)
)
