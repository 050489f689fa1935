package shortener

import "time"

// Code represents a short URL code.
type Code string

// ShortLink represents a shortened URL entity.
type ShortLink struct {
	ID          int64
	Code        Code
	OriginalURL string
	CustomAlias *string
	CreatedAt   time.Time
	ExpiresAt   *time.Time // nil means the link never expires
	IsActive    bool
	Clicks      int64
}

// ClickEvent is one recorded redirect. Empty optional fields are stored as NULL.
type ClickEvent struct {
	ID        int64
	LinkID    int64
	Timestamp time.Time
	IP        string
	UserAgent string
	Country   string
	Referrer  string
}

// Visitor describes the client behind a request.
type Visitor struct {
	IP        string
	UserAgent string
	Referrer  string
	Country   string
}
