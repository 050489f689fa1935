package handlers

import (
	"time"

	"github.com/serroba/shortlink/internal/analytics"
)

// CreateLinkRequest is the request body for creating a short URL.
type CreateLinkRequest struct {
	Body struct {
		OriginalURL    string `doc:"The URL to shorten"                        example:"https://example.com/very/long/path" json:"original_url"`
		CustomAlias    string `doc:"Alias used as the short code"              example:"summer-sale"                        json:"custom_alias,omitempty"`
		ExpirationDays *int   `doc:"Days until the link expires (1-365, default 30)" example:"30"                    json:"expiration_days,omitempty"`
	}
}

// UpdateLinkRequest is the request for changing a short URL.
type UpdateLinkRequest struct {
	Code string `doc:"The short code" example:"abc123" path:"code"`
	Body struct {
		CustomAlias    *string `doc:"New alias, also becomes the short code" example:"summer-sale" json:"custom_alias,omitempty"`
		ExpirationDays *int    `doc:"Days from now until the link expires (1-365)" example:"7"     json:"expiration_days,omitempty"`
		IsActive       *bool   `doc:"Whether the link redirects"             example:"false"      json:"is_active,omitempty"`
	}
}

// CodeRequest addresses a short URL by code.
type CodeRequest struct {
	Code string `doc:"The short code" example:"abc123" path:"code"`
}

// TimelineRequest is the request for per-day click counts.
type TimelineRequest struct {
	Code string `doc:"The short code"          example:"abc123" path:"code"`
	Days int    `doc:"Number of days (1-365)" example:"30"     query:"days" default:"30"`
}

// LinkBody describes a short URL.
type LinkBody struct {
	ShortURL    string     `doc:"The full short URL"      example:"http://localhost:8888/r/abc123"     json:"short_url"`
	ShortCode   string     `doc:"The short code"          example:"abc123"                             json:"short_code"`
	OriginalURL string     `doc:"The original URL"        example:"https://example.com/very/long/path" json:"original_url"`
	CustomAlias *string    `doc:"Alias, when one was set" example:"summer-sale"                        json:"custom_alias,omitempty"`
	CreatedAt   time.Time  `doc:"Creation time"                                                        json:"created_at"`
	ExpiresAt   *time.Time `doc:"Expiration time"                                                      json:"expires_at,omitempty"`
	Clicks      int64      `doc:"Number of redirects"     example:"42"                                 json:"clicks"`
	IsActive    bool       `doc:"Whether the link redirects" example:"true"                            json:"is_active"`
}

// CreateLinkResponse is the response for a successfully created short URL.
type CreateLinkResponse struct {
	Location string `doc:"The short URL location" header:"Location"`
	Body     LinkBody
}

// LinkResponse returns a short URL.
type LinkResponse struct {
	Body LinkBody
}

// RedirectResponse sends the client to the original URL.
type RedirectResponse struct {
	Status       int
	Location     string `header:"Location"`
	CacheControl string `header:"Cache-Control"`
}

// MessageResponse carries a human readable message.
type MessageResponse struct {
	Body struct {
		Message string `example:"URL deleted successfully" json:"message"`
	}
}

// AnalyticsResponse is the click report of a short URL.
type AnalyticsResponse struct {
	Body *analytics.Report
}

// TimelineResponse is the per-day click count of a short URL.
type TimelineResponse struct {
	Body *analytics.Timeline
}
