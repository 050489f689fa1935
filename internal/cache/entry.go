package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var errMissingURL = errors.New("cache entry without original_url")

// naiveLayouts are accepted for expires_at values written without a zone
// offset. Such values are interpreted as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Entry is the cached projection of a short link. It is never authoritative.
type Entry struct {
	OriginalURL string
	IsActive    bool
	ExpiresAt   *time.Time
}

// Expired reports whether the link has expired at now. An expiration equal
// to now counts as expired.
func (e Entry) Expired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}

	return !now.UTC().Before(e.ExpiresAt.UTC())
}

type entryPayload struct {
	OriginalURL string  `json:"original_url"`
	IsActive    bool    `json:"is_active"`
	ExpiresAt   *string `json:"expires_at"`
}

// MarshalJSON writes expires_at as RFC3339 in UTC, or null.
func (e Entry) MarshalJSON() ([]byte, error) {
	p := entryPayload{
		OriginalURL: e.OriginalURL,
		IsActive:    e.IsActive,
	}

	if e.ExpiresAt != nil {
		s := e.ExpiresAt.UTC().Format(time.RFC3339Nano)
		p.ExpiresAt = &s
	}

	return json.Marshal(p)
}

// UnmarshalJSON reads an entry, normalizing expires_at to UTC.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var p entryPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	if p.OriginalURL == "" {
		return errMissingURL
	}

	e.OriginalURL = p.OriginalURL
	e.IsActive = p.IsActive
	e.ExpiresAt = nil

	if p.ExpiresAt != nil {
		t, err := parseTimestamp(*p.ExpiresAt)
		if err != nil {
			return err
		}

		e.ExpiresAt = &t
	}

	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid expires_at %q", s)
}
