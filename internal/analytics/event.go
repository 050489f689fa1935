package analytics

import "time"

const (
	TopicLinkCreated = "link.created"
	TopicLinkClicked = "link.clicked"
)

// LinkCreatedEvent represents an event emitted when a short link is created.
type LinkCreatedEvent struct {
	Code        string     `json:"code"`
	OriginalURL string     `json:"originalUrl"`
	CustomAlias string     `json:"customAlias,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	ClientIP    string     `json:"clientIp"`
	UserAgent   string     `json:"userAgent"`
}

// LinkClickedEvent represents an event emitted after a redirect was recorded.
type LinkClickedEvent struct {
	EventID   string    `json:"eventId"`
	Code      string    `json:"code"`
	LinkID    int64     `json:"linkId"`
	Clicks    int64     `json:"clicks"`
	ClickedAt time.Time `json:"clickedAt"`
	ClientIP  string    `json:"clientIp"`
	UserAgent string    `json:"userAgent"`
	Referrer  string    `json:"referrer,omitempty"`
	Country   string    `json:"country,omitempty"`
}
