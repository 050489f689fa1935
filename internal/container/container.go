package container

import (
	"fmt"
	"time"

	"github.com/samber/do"
)

// Memory selects an in-process backend for RedisAddr or DatabaseURL.
const Memory = "memory"

type Options struct {
	Port            int    `default:"8888"                 help:"Port to listen on"                                       short:"p"`
	BaseURL         string `default:""                     help:"Public base URL of short links (default http://localhost:<port>)"`
	CodeLength      int    `default:"6"                    help:"Length of generated short codes"                         short:"c"`
	RedisAddr       string `default:"localhost:6379"       help:"Redis server address, or \"memory\""                     short:"r"`
	RedisPassword   string `default:""                     help:"Redis password"`
	DatabaseURL     string `default:"sqlite://shortlink.db" help:"postgres://..., sqlite://<path> or \"memory\""          short:"d"`
	Migrate         bool   `default:"true"                 help:"Apply database migrations on start"`
	CacheTTL        int    `default:"3600"                 help:"Lifetime of cached links in seconds"`
	RateLimit       int    `default:"100"                  help:"URL creations allowed per client IP and window"`
	RateWindow      int    `default:"3600"                 help:"Rate limit window in seconds"`
	CacheTimeoutMS  int    `default:"250"                  help:"Timeout of a single cache operation in milliseconds"`
	StoreTimeoutMS  int    `default:"5000"                 help:"Timeout of a single database operation in milliseconds"`
	MaxCodeAttempts int    `default:"10"                   help:"Code generation attempts before giving up"`
	LogFormat       string `default:"console"              help:"Log format (console or json)"`
	LogLevel        string `default:"info"                 help:"Log level (debug, info, warn, error)"`
	LogFile         string `default:""                     help:"Also write JSON logs to this file, rotated"`
	Events          bool   `default:"true"                 help:"Publish analytics events to redis streams"`
	TrustProxy      bool   `default:"false"                help:"Take the client IP from X-Forwarded-For/X-Real-IP (only behind a proxy that sets them)"`
}

// Clock is the time source shared by the service, the reporter and the rate
// limiter.
type Clock func() time.Time

// ClockPackage provides the wall clock.
func ClockPackage(i *do.Injector) {
	do.ProvideValue(i, Clock(time.Now))
}

// PublicBaseURL returns BaseURL, or the local address when unset.
func (o *Options) PublicBaseURL() string {
	if o.BaseURL != "" {
		return o.BaseURL
	}

	return fmt.Sprintf("http://localhost:%d", o.Port)
}

// EventsEnabled reports whether analytics events go to redis streams.
func (o *Options) EventsEnabled() bool {
	return o.Events && o.RedisAddr != Memory
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
