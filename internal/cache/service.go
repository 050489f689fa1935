package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/serroba/shortlink/internal/kv"
	"go.uber.org/zap"
)

// DefaultTTL bounds how stale a cached link may be relative to the database.
const DefaultTTL = time.Hour

// ErrMiss is returned when no usable entry is cached for a code.
var ErrMiss = errors.New("cache miss")

// Service is the read-through cache for link metadata.
//
// Every method returns its backend failure to the caller, which decides the
// fallback: a miss for reads, a no-op for writes and invalidation.
type Service struct {
	store  kv.Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewService creates a cache service over store. A non-positive ttl falls
// back to DefaultTTL.
func NewService(store kv.Store, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Service{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// TTL returns the expiry applied to cached link entries.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// CacheLink stores entry under url:<code>, replacing any previous entry.
func (s *Service) CacheLink(ctx context.Context, code string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return s.store.Set(ctx, kv.URLKey(code), string(payload), s.ttl)
}

// GetCachedLink returns the cached entry for code. It returns ErrMiss when
// nothing is cached or the payload cannot be decoded.
func (s *Service) GetCachedLink(ctx context.Context, code string) (*Entry, error) {
	raw, err := s.store.Get(ctx, kv.URLKey(code))
	if err != nil {
		if errors.Is(err, kv.ErrNil) {
			return nil, ErrMiss
		}

		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		s.logger.Debug("discarding malformed cache entry",
			zap.String("code", code),
			zap.Error(err),
		)

		return nil, ErrMiss
	}

	return &entry, nil
}

// Invalidate removes the cached entry for code. Removing a missing entry is
// not an error.
func (s *Service) Invalidate(ctx context.Context, code string) error {
	return s.store.Del(ctx, kv.URLKey(code))
}

// BumpClickCounter increments the auxiliary counter at analytics:<code>.
// The authoritative count lives in the database.
func (s *Service) BumpClickCounter(ctx context.Context, code string) (int64, error) {
	return s.store.Incr(ctx, kv.AnalyticsKey(code))
}
