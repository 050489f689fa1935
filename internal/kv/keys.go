package kv

// Key prefixes scope the cache namespace by purpose. Codes and endpoint names
// are restricted to [A-Za-z0-9_-] so keys need no escaping.
const (
	URLPrefix       = "url:"
	AnalyticsPrefix = "analytics:"
	RateLimitPrefix = "rate_limit:"
)

// URLKey is the key of the cached link projection for a short code.
func URLKey(code string) string {
	return URLPrefix + code
}

// AnalyticsKey is the key of the auxiliary click counter for a short code.
func AnalyticsKey(code string) string {
	return AnalyticsPrefix + code
}

// RateLimitKey is the key of the sliding-window set for a client and endpoint.
func RateLimitKey(ip, endpoint string) string {
	return RateLimitPrefix + ip + ":" + endpoint
}
