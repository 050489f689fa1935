package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/serroba/shortlink/internal/analytics"
	"github.com/serroba/shortlink/internal/shortener"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linkStore is what every backend in this package implements.
type linkStore interface {
	shortener.Repository
	analytics.ClickReader
}

var baseTime = time.Date(2025, 4, 10, 8, 30, 0, 0, time.UTC)

func newLink(code string) *shortener.ShortLink {
	return &shortener.ShortLink{
		Code:        shortener.Code(code),
		OriginalURL: "https://example.com/" + code,
		CreatedAt:   baseTime,
		IsActive:    true,
	}
}

func newAliasLink(alias string) *shortener.ShortLink {
	link := newLink(alias)
	link.CustomAlias = &alias

	return link
}

func click(at time.Time, ip, country string) *shortener.ClickEvent {
	return &shortener.ClickEvent{
		Timestamp: at,
		IP:        ip,
		UserAgent: "TestAgent/1.0",
		Country:   country,
	}
}

// runRepositoryTests exercises the repository and click reader contract
// against a fresh store per subtest.
func runRepositoryTests(t *testing.T, newStore func(t *testing.T) linkStore) {
	t.Helper()

	ctx := context.Background()

	t.Run("create assigns id and reads back", func(t *testing.T) {
		s := newStore(t)
		expires := baseTime.AddDate(0, 0, 30)
		link := newLink("abc123")
		link.ExpiresAt = &expires

		require.NoError(t, s.Create(ctx, link))
		assert.NotZero(t, link.ID)

		got, err := s.GetByCode(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, link.ID, got.ID)
		assert.Equal(t, "https://example.com/abc123", got.OriginalURL)
		assert.Nil(t, got.CustomAlias)
		assert.True(t, got.IsActive)
		assert.Zero(t, got.Clicks)
		assert.True(t, baseTime.Equal(got.CreatedAt))
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, expires.Equal(*got.ExpiresAt))
		assert.Equal(t, time.UTC, got.ExpiresAt.Location())
	})

	t.Run("unknown code is not found", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetByCode(ctx, "nope")

		assert.ErrorIs(t, err, shortener.ErrNotFound)
	})

	t.Run("duplicate code is rejected", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newLink("abc123")))

		err := s.Create(ctx, newLink("abc123"))

		assert.ErrorIs(t, err, shortener.ErrCodeTaken)
	})

	t.Run("duplicate alias is rejected", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newAliasLink("promo1")))

		other := newLink("xyz789")
		alias := "promo1"
		other.CustomAlias = &alias

		err := s.Create(ctx, other)

		assert.ErrorIs(t, err, shortener.ErrAliasTaken)
	})

	t.Run("token in use checks codes and aliases", func(t *testing.T) {
		s := newStore(t)
		plain := newLink("abc123")
		require.NoError(t, s.Create(ctx, plain))

		aliased := newLink("zzz999")
		alias := "promo1"
		aliased.CustomAlias = &alias
		require.NoError(t, s.Create(ctx, aliased))

		inUse, err := s.TokenInUse(ctx, "abc123", 0)
		require.NoError(t, err)
		assert.True(t, inUse)

		inUse, err = s.TokenInUse(ctx, "promo1", 0)
		require.NoError(t, err)
		assert.True(t, inUse)

		inUse, err = s.TokenInUse(ctx, "promo1", aliased.ID)
		require.NoError(t, err)
		assert.False(t, inUse, "a link does not collide with itself")

		inUse, err = s.TokenInUse(ctx, "free42", 0)
		require.NoError(t, err)
		assert.False(t, inUse)
	})

	t.Run("update renames code and changes fields", func(t *testing.T) {
		s := newStore(t)
		link := newLink("abc123")
		require.NoError(t, s.Create(ctx, link))

		alias := "summer"
		link.Code = "summer"
		link.CustomAlias = &alias
		link.IsActive = false
		link.ExpiresAt = nil
		require.NoError(t, s.Update(ctx, link))

		_, err := s.GetByCode(ctx, "abc123")
		assert.ErrorIs(t, err, shortener.ErrNotFound)

		got, err := s.GetByCode(ctx, "summer")
		require.NoError(t, err)
		assert.Equal(t, link.ID, got.ID)
		require.NotNil(t, got.CustomAlias)
		assert.Equal(t, "summer", *got.CustomAlias)
		assert.False(t, got.IsActive)
	})

	t.Run("update into a taken code is rejected", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newLink("abc123")))

		link := newLink("def456")
		require.NoError(t, s.Create(ctx, link))

		link.Code = "abc123"

		assert.ErrorIs(t, s.Update(ctx, link), shortener.ErrCodeTaken)
	})

	t.Run("update of unknown link is not found", func(t *testing.T) {
		s := newStore(t)
		link := newLink("abc123")
		link.ID = 4242

		assert.ErrorIs(t, s.Update(ctx, link), shortener.ErrNotFound)
	})

	t.Run("record click increments counter and appends a row", func(t *testing.T) {
		s := newStore(t)
		link := newLink("abc123")
		require.NoError(t, s.Create(ctx, link))

		c := click(baseTime.Add(time.Minute), "203.0.113.7", "")
		c.Referrer = "https://news.example"

		clicks, err := s.RecordClick(ctx, "abc123", c)

		require.NoError(t, err)
		assert.Equal(t, int64(1), clicks)
		assert.NotZero(t, c.ID)
		assert.Equal(t, link.ID, c.LinkID)

		recent, err := s.RecentClicks(ctx, link.ID, 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "203.0.113.7", recent[0].IP)
		assert.Equal(t, "TestAgent/1.0", recent[0].UserAgent)
		assert.Equal(t, "https://news.example", recent[0].Referrer)
		assert.Empty(t, recent[0].Country)
	})

	t.Run("record click on unknown code is not found", func(t *testing.T) {
		s := newStore(t)

		_, err := s.RecordClick(ctx, "nope", click(baseTime, "203.0.113.7", ""))

		assert.ErrorIs(t, err, shortener.ErrNotFound)
	})

	t.Run("concurrent clicks are not lost", func(t *testing.T) {
		s := newStore(t)
		link := newLink("abc123")
		require.NoError(t, s.Create(ctx, link))

		const n = 20

		var wg sync.WaitGroup

		for i := range n {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, err := s.RecordClick(ctx, "abc123", click(baseTime.Add(time.Duration(i)*time.Second), "203.0.113.7", ""))
				assert.NoError(t, err)
			}()
		}

		wg.Wait()

		got, err := s.GetByCode(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, int64(n), got.Clicks)

		count, err := s.CountClicksSince(ctx, link.ID, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, int64(n), count)
	})

	t.Run("delete cascades clicks", func(t *testing.T) {
		s := newStore(t)
		link := newLink("abc123")
		require.NoError(t, s.Create(ctx, link))
		_, err := s.RecordClick(ctx, "abc123", click(baseTime, "203.0.113.7", "DE"))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "abc123"))

		_, err = s.GetByCode(ctx, "abc123")
		assert.ErrorIs(t, err, shortener.ErrNotFound)

		count, err := s.CountClicksSince(ctx, link.ID, time.Time{})
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("delete of unknown code is not found", func(t *testing.T) {
		s := newStore(t)

		assert.ErrorIs(t, s.Delete(ctx, "nope"), shortener.ErrNotFound)
	})

	t.Run("click queries", func(t *testing.T) {
		s := newStore(t)
		link := newLink("abc123")
		require.NoError(t, s.Create(ctx, link))

		for _, c := range []*shortener.ClickEvent{
			click(baseTime.AddDate(0, 0, -3), "10.0.0.1", "DE"),
			click(baseTime.AddDate(0, 0, -1), "10.0.0.2", "US"),
			click(baseTime.Add(-time.Hour), "10.0.0.3", "US"),
			click(baseTime, "10.0.0.4", ""),
		} {
			_, err := s.RecordClick(ctx, "abc123", c)
			require.NoError(t, err)
		}

		id, total, err := s.LookupLink(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, link.ID, id)
		assert.Equal(t, int64(4), total)

		since, err := s.CountClicksSince(ctx, id, baseTime.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(3), since, "the lower bound is inclusive")

		byCountry, err := s.ClicksByCountry(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, analytics.Breakdown{"DE": 1, "US": 2}, byCountry)

		byDay, err := s.ClicksByDay(ctx, id, baseTime.AddDate(0, 0, -2))
		require.NoError(t, err)
		assert.Equal(t, analytics.Breakdown{"2025-04-09": 1, "2025-04-10": 2}, byDay)

		recent, err := s.RecentClicks(ctx, id, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "10.0.0.4", recent[0].IP)
		assert.Equal(t, "10.0.0.3", recent[1].IP)
		assert.True(t, baseTime.Equal(recent[0].Timestamp))

		_, _, err = s.LookupLink(ctx, "nope")
		assert.ErrorIs(t, err, shortener.ErrNotFound)
	})
}
