package shortener

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/serroba/shortlink/internal/analytics"
	"github.com/serroba/shortlink/internal/cache"
	"github.com/serroba/shortlink/internal/kv"
	"github.com/serroba/shortlink/internal/messaging"
	"github.com/serroba/shortlink/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	DefaultStoreTimeout    = 5 * time.Second
	DefaultMaxCodeAttempts = 10
)

// LinkCache is the subset of the cache service used on the redirect path.
type LinkCache interface {
	CacheLink(ctx context.Context, code string, entry cache.Entry) error
	GetCachedLink(ctx context.Context, code string) (*cache.Entry, error)
	Invalidate(ctx context.Context, code string) error
	BumpClickCounter(ctx context.Context, code string) (int64, error)
}

// CreateRequest holds the input for creating a short link.
type CreateRequest struct {
	OriginalURL    string
	CustomAlias    string
	ExpirationDays int // 0 means the link never expires
}

// UpdateRequest holds optional changes to a short link. Nil fields are left untouched.
type UpdateRequest struct {
	CustomAlias    *string
	ExpirationDays *int
	IsActive       *bool
}

// Service resolves short codes, records clicks, and manages link lifecycle.
//
// The database is authoritative. Cache failures degrade to database reads on
// the redirect path and are ignored on writes.
type Service struct {
	repo            Repository
	cache           LinkCache
	limiter         ratelimit.Limiter
	generateCode    CodeGenerator
	publishCreated  messaging.Publish[analytics.LinkCreatedEvent]
	publishClicked  messaging.Publish[analytics.LinkClickedEvent]
	logger          *zap.Logger
	now             func() time.Time
	storeTimeout    time.Duration
	maxCodeAttempts int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithStoreTimeout bounds every repository call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithMaxCodeAttempts bounds code generation retries on collision.
func WithMaxCodeAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCodeAttempts = n
		}
	}
}

// WithPublishers sets the analytics event publishers.
func WithPublishers(
	created messaging.Publish[analytics.LinkCreatedEvent],
	clicked messaging.Publish[analytics.LinkClickedEvent],
) Option {
	return func(s *Service) {
		s.publishCreated = created
		s.publishClicked = clicked
	}
}

// NewService creates a new link service. The limiter is wrapped so that
// backend failures never block creation.
func NewService(
	repo Repository,
	linkCache LinkCache,
	limiter ratelimit.Limiter,
	generator CodeGenerator,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		repo:            repo,
		cache:           linkCache,
		limiter:         ratelimit.NewFailOpen(limiter, logger),
		generateCode:    generator,
		publishCreated:  messaging.NoopPublish[analytics.LinkCreatedEvent],
		publishClicked:  messaging.NoopPublish[analytics.LinkClickedEvent],
		logger:          logger,
		now:             time.Now,
		storeTimeout:    DefaultStoreTimeout,
		maxCodeAttempts: DefaultMaxCodeAttempts,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Resolve returns the original URL for code and records the click.
func (s *Service) Resolve(ctx context.Context, code Code, visitor Visitor) (string, error) {
	entry, err := s.lookup(ctx, code)
	if err != nil {
		return "", err
	}

	if !entry.IsActive {
		return "", ErrDeactivated
	}

	if entry.Expired(s.now()) {
		return "", ErrExpired
	}

	s.recordClick(ctx, code, visitor)

	return entry.OriginalURL, nil
}

// lookup reads the cached projection of code, falling back to the database
// and repopulating the cache on a miss or cache failure.
func (s *Service) lookup(ctx context.Context, code Code) (*cache.Entry, error) {
	entry, err := s.cache.GetCachedLink(ctx, string(code))
	if err == nil {
		return entry, nil
	}

	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("cache read failed, falling back to database",
			zap.String("code", string(code)),
			zap.Error(err),
		)
	}

	link, err := s.getLink(ctx, code)
	if err != nil {
		return nil, err
	}

	projection := cacheEntry(link)
	s.cacheLink(ctx, link.Code, projection)

	return &projection, nil
}

func (s *Service) recordClick(ctx context.Context, code Code, visitor Visitor) {
	click := &ClickEvent{
		Timestamp: s.now().UTC(),
		IP:        visitor.IP,
		UserAgent: visitor.UserAgent,
		Country:   visitor.Country,
		Referrer:  visitor.Referrer,
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	clicks, err := s.repo.RecordClick(storeCtx, code, click)

	cancel()

	if err != nil {
		s.logger.Error("failed to record click",
			zap.String("code", string(code)),
			zap.Error(err),
		)

		return
	}

	if _, err := s.cache.BumpClickCounter(ctx, string(code)); err != nil {
		s.logger.Warn("failed to bump click counter",
			zap.String("code", string(code)),
			zap.Error(err),
		)
	}

	event := &analytics.LinkClickedEvent{
		EventID:   uuid.NewString(),
		Code:      string(code),
		LinkID:    click.LinkID,
		Clicks:    clicks,
		ClickedAt: click.Timestamp,
		ClientIP:  visitor.IP,
		UserAgent: visitor.UserAgent,
		Referrer:  visitor.Referrer,
		Country:   visitor.Country,
	}

	if err := s.publishClicked(event); err != nil {
		s.logger.Error("failed to publish click event",
			zap.String("code", event.Code),
			zap.Error(err),
		)
	}
}

// Create validates and stores a new short link.
func (s *Service) Create(ctx context.Context, req CreateRequest, visitor Visitor) (*ShortLink, error) {
	// The limiter is fail-open: a backend error comes back as allowed with a
	// nil error.
	allowed, _ := s.limiter.Allow(ctx, kv.RateLimitKey(visitor.IP, ratelimit.EndpointCreateURL))
	if !allowed {
		return nil, ErrRateLimited
	}

	if err := ValidateURL(req.OriginalURL); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	link := &ShortLink{
		OriginalURL: req.OriginalURL,
		CreatedAt:   now,
		IsActive:    true,
	}

	if req.ExpirationDays > 0 {
		expiresAt := now.AddDate(0, 0, req.ExpirationDays)
		link.ExpiresAt = &expiresAt
	}

	if req.CustomAlias != "" {
		if err := s.createWithAlias(ctx, link, req.CustomAlias); err != nil {
			return nil, err
		}
	} else if err := s.createWithGeneratedCode(ctx, link); err != nil {
		return nil, err
	}

	s.cacheLink(ctx, link.Code, cacheEntry(link))

	event := &analytics.LinkCreatedEvent{
		Code:        string(link.Code),
		OriginalURL: link.OriginalURL,
		CustomAlias: req.CustomAlias,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
		ClientIP:    visitor.IP,
		UserAgent:   visitor.UserAgent,
	}

	if err := s.publishCreated(event); err != nil {
		s.logger.Error("failed to publish analytics event",
			zap.String("code", event.Code),
			zap.Error(err),
		)
	}

	return link, nil
}

func (s *Service) createWithAlias(ctx context.Context, link *ShortLink, alias string) error {
	if err := ValidateAlias(alias); err != nil {
		return err
	}

	inUse, err := s.tokenInUse(ctx, alias, 0)
	if err != nil {
		return err
	}

	if inUse {
		return ErrConflict
	}

	link.Code = Code(alias)
	link.CustomAlias = &alias

	err = s.createLink(ctx, link)
	if errors.Is(err, ErrCodeTaken) || errors.Is(err, ErrAliasTaken) {
		return ErrConflict
	}

	return err
}

// createWithGeneratedCode draws random codes until one is accepted by the
// store. The unique constraint is the final authority; a rejected insert
// draws a new code.
func (s *Service) createWithGeneratedCode(ctx context.Context, link *ShortLink) error {
	for attempt := 1; attempt <= s.maxCodeAttempts; attempt++ {
		candidate := s.generateCode()

		inUse, err := s.tokenInUse(ctx, candidate, 0)
		if err != nil {
			return err
		}

		if inUse {
			continue
		}

		link.Code = Code(candidate)

		err = s.createLink(ctx, link)
		if err == nil {
			return nil
		}

		if !errors.Is(err, ErrCodeTaken) {
			return err
		}

		s.logger.Debug("short code collision, regenerating",
			zap.String("code", candidate),
			zap.Int("attempt", attempt),
		)
	}

	s.logger.Error("short code space exhausted", zap.Int("attempts", s.maxCodeAttempts))

	return ErrCodeSpaceExhausted
}

// Get returns the authoritative link for code.
func (s *Service) Get(ctx context.Context, code Code) (*ShortLink, error) {
	return s.getLink(ctx, code)
}

// Update applies req to the link at code. Setting an alias renames the short
// code to it. The cache entry is invalidated for the old and the new code.
func (s *Service) Update(ctx context.Context, code Code, req UpdateRequest) (*ShortLink, error) {
	link, err := s.getLink(ctx, code)
	if err != nil {
		return nil, err
	}

	oldCode := link.Code

	if req.CustomAlias != nil {
		alias := *req.CustomAlias
		if err := ValidateAlias(alias); err != nil {
			return nil, err
		}

		inUse, err := s.tokenInUse(ctx, alias, link.ID)
		if err != nil {
			return nil, err
		}

		if inUse {
			return nil, ErrConflict
		}

		link.CustomAlias = &alias
		link.Code = Code(alias)
	}

	if req.ExpirationDays != nil {
		link.ExpiresAt = nil

		if *req.ExpirationDays > 0 {
			expiresAt := s.now().UTC().AddDate(0, 0, *req.ExpirationDays)
			link.ExpiresAt = &expiresAt
		}
	}

	if req.IsActive != nil {
		link.IsActive = *req.IsActive
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err = s.repo.Update(storeCtx, link)

	cancel()

	if errors.Is(err, ErrCodeTaken) || errors.Is(err, ErrAliasTaken) {
		return nil, ErrConflict
	}

	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, oldCode)

	if link.Code != oldCode {
		s.invalidate(ctx, link.Code)
	}

	return link, nil
}

// Delete removes the link at code together with its clicks.
func (s *Service) Delete(ctx context.Context, code Code) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err := s.repo.Delete(storeCtx, code)

	cancel()

	if err != nil {
		return err
	}

	s.invalidate(ctx, code)

	return nil
}

func (s *Service) getLink(ctx context.Context, code Code) (*ShortLink, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	return s.repo.GetByCode(ctx, code)
}

func (s *Service) createLink(ctx context.Context, link *ShortLink) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	return s.repo.Create(ctx, link)
}

func (s *Service) tokenInUse(ctx context.Context, token string, excludeID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	return s.repo.TokenInUse(ctx, token, excludeID)
}

func (s *Service) cacheLink(ctx context.Context, code Code, entry cache.Entry) {
	if err := s.cache.CacheLink(ctx, string(code), entry); err != nil {
		s.logger.Warn("failed to cache link",
			zap.String("code", string(code)),
			zap.Error(err),
		)
	}
}

func (s *Service) invalidate(ctx context.Context, code Code) {
	if err := s.cache.Invalidate(ctx, string(code)); err != nil {
		s.logger.Warn("failed to invalidate cached link",
			zap.String("code", string(code)),
			zap.Error(err),
		)
	}
}

func cacheEntry(link *ShortLink) cache.Entry {
	return cache.Entry{
		OriginalURL: link.OriginalURL,
		IsActive:    link.IsActive,
		ExpiresAt:   link.ExpiresAt,
	}
}
