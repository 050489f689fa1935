package analytics

import (
	"context"
	"time"
)

const (
	DefaultTimelineDays = 30
	RecentClicksLimit   = 50

	reportDays = 30
	dayLayout  = "2006-01-02"
)

// Breakdown maps a label, such as a country code or a YYYY-MM-DD day, to a click count.
type Breakdown map[string]int64

// Total returns the sum of all counts.
func (b Breakdown) Total() int64 {
	var total int64
	for _, n := range b {
		total += n
	}

	return total
}

// Click is a single recorded redirect as seen by analytics.
type Click struct {
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip_address"`
	UserAgent string    `json:"user_agent,omitempty"`
	Country   string    `json:"country,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
}

// ClickReader queries the click ledger.
type ClickReader interface {
	// LookupLink returns the id and cumulative click counter of the link at code.
	LookupLink(ctx context.Context, code string) (linkID, clicks int64, err error)
	CountClicksSince(ctx context.Context, linkID int64, since time.Time) (int64, error)
	// ClicksByCountry groups clicks with a known country.
	ClicksByCountry(ctx context.Context, linkID int64) (Breakdown, error)
	// ClicksByDay groups clicks at or after since by UTC day.
	ClicksByDay(ctx context.Context, linkID int64, since time.Time) (Breakdown, error)
	// RecentClicks returns up to limit clicks, newest first.
	RecentClicks(ctx context.Context, linkID int64, limit int) ([]Click, error)
}

// Report summarizes the clicks of one link.
type Report struct {
	TotalClicks     int64     `json:"total_clicks"`
	ClicksLast24h   int64     `json:"clicks_last_24h"`
	ClicksByCountry Breakdown `json:"clicks_by_country"`
	ClicksByDate    Breakdown `json:"clicks_by_date"`
	RecentClicks    []Click   `json:"recent_clicks"`
}

// Timeline counts a link's clicks per day over a period.
type Timeline struct {
	Code       string    `json:"short_code"`
	PeriodDays int       `json:"period_days"`
	Days       Breakdown `json:"timeline"`
	Total      int64     `json:"total_clicks"`
}

// Reporter builds analytics reports from the click ledger.
type Reporter struct {
	reader ClickReader
	now    func() time.Time
}

// NewReporter creates a new reporter. A nil now uses time.Now.
func NewReporter(reader ClickReader, now func() time.Time) *Reporter {
	if now == nil {
		now = time.Now
	}

	return &Reporter{
		reader: reader,
		now:    now,
	}
}

// Report returns the click summary of the link at code. TotalClicks is the
// link's counter, not a count of click rows.
func (r *Reporter) Report(ctx context.Context, code string) (*Report, error) {
	linkID, total, err := r.reader.LookupLink(ctx, code)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()

	last24h, err := r.reader.CountClicksSince(ctx, linkID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	byCountry, err := r.reader.ClicksByCountry(ctx, linkID)
	if err != nil {
		return nil, err
	}

	byDate, err := r.reader.ClicksByDay(ctx, linkID, now.AddDate(0, 0, -reportDays))
	if err != nil {
		return nil, err
	}

	recent, err := r.reader.RecentClicks(ctx, linkID, RecentClicksLimit)
	if err != nil {
		return nil, err
	}

	return &Report{
		TotalClicks:     total,
		ClicksLast24h:   last24h,
		ClicksByCountry: byCountry,
		ClicksByDate:    byDate,
		RecentClicks:    recent,
	}, nil
}

// Timeline returns per-day click counts for the last days days. Days without
// clicks are omitted. A non-positive days uses DefaultTimelineDays.
func (r *Reporter) Timeline(ctx context.Context, code string, days int) (*Timeline, error) {
	if days <= 0 {
		days = DefaultTimelineDays
	}

	linkID, _, err := r.reader.LookupLink(ctx, code)
	if err != nil {
		return nil, err
	}

	byDay, err := r.reader.ClicksByDay(ctx, linkID, r.now().UTC().AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}

	return &Timeline{
		Code:       code,
		PeriodDays: days,
		Days:       byDay,
		Total:      byDay.Total(),
	}, nil
}

// DayKey formats t as the UTC day label used in breakdowns.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}
