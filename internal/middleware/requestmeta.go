package middleware

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/shortlink/internal/handlers"
)

// maxIPLength is the widest textual IPv6 address.
const maxIPLength = 45

// countryHeaders carry the ISO 3166-1 alpha-2 country of the client as set by
// a CDN or load balancer, in order of preference.
var countryHeaders = []string{"CF-IPCountry", "CloudFront-Viewer-Country", "X-Country-Code"}

// RequestMeta is a middleware that adds client IP, user-agent, referrer and
// country to the request context. The client IP is the socket peer unless
// trustProxy is set, in which case X-Forwarded-For and X-Real-IP win.
func RequestMeta(_ huma.API, trustProxy bool) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		meta := handlers.RequestMeta{
			ClientIP:  extractClientIP(ctx, trustProxy),
			UserAgent: ctx.Header("User-Agent"),
			Referrer:  ctx.Header("Referer"),
			Country:   extractCountry(ctx),
		}

		newCtx := handlers.ContextWithRequestMeta(ctx.Context(), meta)
		ctx = huma.WithContext(ctx, newCtx)

		next(ctx)
	}
}

// ProcessTime reports the handling time in seconds in the X-Process-Time header.
func ProcessTime(_ huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()

		// Headers must be set before the handler writes the status line.
		ctx = &timedContext{humaContext: ctx, start: start}

		next(ctx)
	}
}

// humaContext lets timedContext embed huma.Context without a field named
// Context shadowing the Context method.
type humaContext = huma.Context

type timedContext struct {
	humaContext
	start   time.Time
	written bool
}

func (c *timedContext) SetStatus(code int) {
	if !c.written {
		c.written = true
		c.SetHeader("X-Process-Time", strconv.FormatFloat(time.Since(c.start).Seconds(), 'f', 6, 64))
	}

	c.humaContext.SetStatus(code)
}

func extractClientIP(ctx huma.Context, trustProxy bool) string {
	ip := ""
	if trustProxy {
		ip = forwardedIP(ctx)
	}

	if ip == "" {
		ip = remoteIP(ctx)
	}

	if len(ip) > maxIPLength {
		ip = ip[:maxIPLength]
	}

	return ip
}

// forwardedIP returns the client address reported by a reverse proxy.
func forwardedIP(ctx huma.Context) string {
	// Check X-Forwarded-For first (may contain multiple IPs)
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		// Take the first IP (original client)
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}

		return strings.TrimSpace(xff)
	}

	return strings.TrimSpace(ctx.Header("X-Real-IP"))
}

func remoteIP(ctx huma.Context) string {
	host := ctx.RemoteAddr()

	ip, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}

	return ip
}

// extractCountry returns an upper-case two letter country code, or "" when
// the country is unknown.
func extractCountry(ctx huma.Context) string {
	for _, header := range countryHeaders {
		code := strings.ToUpper(strings.TrimSpace(ctx.Header(header)))
		if isCountryCode(code) {
			return code
		}
	}

	return ""
}

func isCountryCode(code string) bool {
	// XX is the placeholder for unknown locations.
	if len(code) != 2 || code == "XX" {
		return false
	}

	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}

	return true
}
