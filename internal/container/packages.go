package container

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR request and response bodies
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/shortlink/internal/analytics"
	analyticsstore "github.com/serroba/shortlink/internal/analytics/store"
	"github.com/serroba/shortlink/internal/cache"
	"github.com/serroba/shortlink/internal/handlers"
	"github.com/serroba/shortlink/internal/health"
	"github.com/serroba/shortlink/internal/kv"
	"github.com/serroba/shortlink/internal/messaging"
	"github.com/serroba/shortlink/internal/middleware"
	"github.com/serroba/shortlink/internal/ratelimit"
	"github.com/serroba/shortlink/internal/shortener"
	"go.uber.org/zap"
)

// RedisPackage provides the *redis.Client and the kv.Store on top of it.
// With RedisAddr "memory" the store is in-process and no client is needed.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*redis.Client, error) {
		opts := do.MustInvoke[*Options](i)

		return redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
		}), nil
	})

	do.Provide(i, func(i *do.Injector) (kv.Store, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.RedisAddr == Memory {
			return kv.NewMemoryStore(), nil
		}

		client := do.MustInvoke[*redis.Client](i)

		return kv.NewRedisStore(client, millis(opts.CacheTimeoutMS)), nil
	})
}

// CachePackage provides the link cache.
func CachePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*cache.Service, error) {
		opts := do.MustInvoke[*Options](i)
		store := do.MustInvoke[kv.Store](i)
		logger := do.MustInvoke[*zap.Logger](i)

		return cache.NewService(store, seconds(opts.CacheTTL), logger), nil
	})
}

// RateLimitPackage provides the creation rate limiter.
func RateLimitPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (ratelimit.Limiter, error) {
		opts := do.MustInvoke[*Options](i)
		store := do.MustInvoke[kv.Store](i)
		now := do.MustInvoke[Clock](i)

		return ratelimit.NewSlidingWindowLimiter(
			store,
			int64(opts.RateLimit),
			seconds(opts.RateWindow),
			ratelimit.WithClock(now),
		), nil
	})
}

// PublisherGroupPackage provides the analytics event publishers. Without
// events enabled they drop everything.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		client := do.MustInvoke[*redis.Client](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := messaging.NewRedisPublisher(client, logger)
		if err != nil {
			return nil, err
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(i, func(i *do.Injector) (analytics.Publishers, error) {
		opts := do.MustInvoke[*Options](i)
		if !opts.EventsEnabled() {
			return analytics.NoopPublishers(), nil
		}

		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return analytics.NewPublishers(group.Publisher()), nil
	})
}

// ServicePackage provides the link service and the analytics reporter.
func ServicePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*shortener.Service, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		publishers := do.MustInvoke[analytics.Publishers](i)
		now := do.MustInvoke[Clock](i)

		generator, err := shortener.NewCodeGenerator(opts.CodeLength)
		if err != nil {
			return nil, err
		}

		return shortener.NewService(
			do.MustInvoke[shortener.Repository](i),
			do.MustInvoke[*cache.Service](i),
			do.MustInvoke[ratelimit.Limiter](i),
			generator,
			logger,
			shortener.WithStoreTimeout(millis(opts.StoreTimeoutMS)),
			shortener.WithMaxCodeAttempts(opts.MaxCodeAttempts),
			shortener.WithPublishers(publishers.LinkCreated, publishers.LinkClicked),
			shortener.WithClock(now),
		), nil
	})

	do.Provide(i, func(i *do.Injector) (*analytics.Reporter, error) {
		now := do.MustInvoke[Clock](i)

		return analytics.NewReporter(do.MustInvoke[analytics.ClickReader](i), now), nil
	})
}

// HTTPPackage provides the router and the huma.API with every route mounted.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*chi.Mux, error) {
		router := chi.NewMux()
		router.Use(chimw.RequestID, chimw.Recoverer)

		return router, nil
	})

	do.Provide(i, func(i *do.Injector) (*handlers.URLHandler, error) {
		opts := do.MustInvoke[*Options](i)

		return handlers.NewURLHandler(
			do.MustInvoke[*shortener.Service](i),
			do.MustInvoke[*analytics.Reporter](i),
			opts.PublicBaseURL(),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	do.Provide(i, func(i *do.Injector) (*health.Handler, error) {
		return health.NewHandler(
			do.MustInvoke[kv.Store](i),
			do.MustInvoke[*Database](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		router := do.MustInvoke[*chi.Mux](i)
		opts := do.MustInvoke[*Options](i)
		api := humachi.New(router, huma.DefaultConfig("Shortlink", "1.0.0"))
		api.UseMiddleware(middleware.ProcessTime(api), middleware.RequestMeta(api, opts.TrustProxy))

		handlers.RegisterRoutes(api, do.MustInvoke[*handlers.URLHandler](i))
		health.RegisterRoutes(api, do.MustInvoke[*health.Handler](i))

		return api, nil
	})
}

// ConsumerGroupPackage provides the analytics consumer group reading redis
// streams.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		client := do.MustInvoke[*redis.Client](i)
		logger := do.MustInvoke[*zap.Logger](i)

		subscriber, err := messaging.NewRedisSubscriber(client, messaging.DefaultConsumerGroup, logger)
		if err != nil {
			return nil, err
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		analytics.RegisterConsumers(group, subscriber, analyticsstore.NewNoop(logger), logger)

		return group, nil
	})
}
