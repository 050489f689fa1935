package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/serroba/shortlink/internal/analytics"
	"github.com/serroba/shortlink/internal/shortener"
)

// MemoryStore is an in-memory implementation of shortener.Repository and
// analytics.ClickReader.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	links  map[int64]*shortener.ShortLink // id -> link
	codes  map[shortener.Code]int64       // short code -> id
	clicks map[int64][]shortener.ClickEvent
	now    func() time.Time
}

// NewMemoryStore creates a new in-memory link store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:  make(map[int64]*shortener.ShortLink),
		codes:  make(map[shortener.Code]int64),
		clicks: make(map[int64][]shortener.ClickEvent),
		now:    time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, link *shortener.ShortLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkUnique(link, 0); err != nil {
		return err
	}

	m.nextID++
	link.ID = m.nextID

	if link.CreatedAt.IsZero() {
		link.CreatedAt = m.now().UTC()
	}

	stored := cloneLink(link)
	m.links[link.ID] = stored
	m.codes[link.Code] = link.ID

	return nil
}

func (m *MemoryStore) GetByCode(_ context.Context, code shortener.Code) (*shortener.ShortLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.codes[code]
	if !ok {
		return nil, shortener.ErrNotFound
	}

	return cloneLink(m.links[id]), nil
}

func (m *MemoryStore) TokenInUse(_ context.Context, token string, excludeID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, link := range m.links {
		if id == excludeID {
			continue
		}

		if string(link.Code) == token || (link.CustomAlias != nil && *link.CustomAlias == token) {
			return true, nil
		}
	}

	return false, nil
}

func (m *MemoryStore) Update(_ context.Context, link *shortener.ShortLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.links[link.ID]
	if !ok {
		return shortener.ErrNotFound
	}

	if err := m.checkUnique(link, link.ID); err != nil {
		return err
	}

	delete(m.codes, current.Code)

	updated := cloneLink(link)
	updated.Clicks = current.Clicks
	updated.CreatedAt = current.CreatedAt
	m.links[link.ID] = updated
	m.codes[link.Code] = link.ID

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, code shortener.Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.codes[code]
	if !ok {
		return shortener.ErrNotFound
	}

	delete(m.codes, code)
	delete(m.links, id)
	delete(m.clicks, id)

	return nil
}

func (m *MemoryStore) RecordClick(_ context.Context, code shortener.Code, click *shortener.ClickEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.codes[code]
	if !ok {
		return 0, shortener.ErrNotFound
	}

	link := m.links[id]
	link.Clicks++

	m.nextID++
	click.ID = m.nextID
	click.LinkID = id
	m.clicks[id] = append(m.clicks[id], *click)

	return link.Clicks, nil
}

// ClickCount returns the number of click rows stored for code.
func (m *MemoryStore) ClickCount(code shortener.Code) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.clicks[m.codes[code]])
}

func (m *MemoryStore) LookupLink(_ context.Context, code string) (int64, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.codes[shortener.Code(code)]
	if !ok {
		return 0, 0, shortener.ErrNotFound
	}

	return id, m.links[id].Clicks, nil
}

func (m *MemoryStore) CountClicksSince(_ context.Context, linkID int64, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64

	for _, c := range m.clicks[linkID] {
		if !c.Timestamp.Before(since) {
			n++
		}
	}

	return n, nil
}

func (m *MemoryStore) ClicksByCountry(_ context.Context, linkID int64) (analytics.Breakdown, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := analytics.Breakdown{}

	for _, c := range m.clicks[linkID] {
		if c.Country != "" {
			out[c.Country]++
		}
	}

	return out, nil
}

func (m *MemoryStore) ClicksByDay(_ context.Context, linkID int64, since time.Time) (analytics.Breakdown, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := analytics.Breakdown{}

	for _, c := range m.clicks[linkID] {
		if !c.Timestamp.Before(since) {
			out[analytics.DayKey(c.Timestamp)]++
		}
	}

	return out, nil
}

func (m *MemoryStore) RecentClicks(_ context.Context, linkID int64, limit int) ([]analytics.Click, error) {
	m.mu.RLock()
	events := slices.Clone(m.clicks[linkID])
	m.mu.RUnlock()

	slices.SortStableFunc(events, func(a, b shortener.ClickEvent) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}

		return cmp.Compare(b.ID, a.ID)
	})

	if len(events) > limit {
		events = events[:limit]
	}

	out := make([]analytics.Click, 0, len(events))
	for _, e := range events {
		out = append(out, toAnalyticsClick(e))
	}

	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// checkUnique mirrors the unique constraints on short_code and custom_alias.
func (m *MemoryStore) checkUnique(link *shortener.ShortLink, selfID int64) error {
	for id, other := range m.links {
		if id == selfID {
			continue
		}

		if other.Code == link.Code {
			return shortener.ErrCodeTaken
		}

		if link.CustomAlias != nil && other.CustomAlias != nil && *other.CustomAlias == *link.CustomAlias {
			return shortener.ErrAliasTaken
		}
	}

	return nil
}

func cloneLink(link *shortener.ShortLink) *shortener.ShortLink {
	c := *link

	if link.CustomAlias != nil {
		alias := *link.CustomAlias
		c.CustomAlias = &alias
	}

	if link.ExpiresAt != nil {
		expiresAt := *link.ExpiresAt
		c.ExpiresAt = &expiresAt
	}

	return &c
}

func toAnalyticsClick(e shortener.ClickEvent) analytics.Click {
	return analytics.Click{
		Timestamp: e.Timestamp.UTC(),
		IP:        e.IP,
		UserAgent: e.UserAgent,
		Country:   e.Country,
		Referrer:  e.Referrer,
	}
}

// Compile-time checks.
var (
	_ shortener.Repository  = (*MemoryStore)(nil)
	_ analytics.ClickReader = (*MemoryStore)(nil)
)
