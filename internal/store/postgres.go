package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/shortlink/internal/analytics"
	"github.com/serroba/shortlink/internal/shortener"
)

const (
	pgUniqueViolation = "23505"

	constraintShortCode   = "links_short_code_key"
	constraintCustomAlias = "links_custom_alias_key"
)

// PostgresStore is a PostgreSQL implementation of shortener.Repository and
// analytics.ClickReader.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed link store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) Create(ctx context.Context, link *shortener.ShortLink) error {
	query := `
		INSERT INTO links (original_url, short_code, custom_alias, created_at, expires_at, is_active, clicks)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
		RETURNING id, created_at
	`

	createdAt := link.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err := p.pool.QueryRow(ctx, query,
		link.OriginalURL,
		string(link.Code),
		link.CustomAlias,
		createdAt,
		link.ExpiresAt,
		link.IsActive,
	).Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}

	link.CreatedAt = link.CreatedAt.UTC()
	link.Clicks = 0

	return nil
}

func (p *PostgresStore) GetByCode(ctx context.Context, code shortener.Code) (*shortener.ShortLink, error) {
	query := `
		SELECT id, short_code, original_url, custom_alias, created_at, expires_at, is_active, clicks
		FROM links
		WHERE short_code = $1
	`

	var link shortener.ShortLink

	err := p.pool.QueryRow(ctx, query, string(code)).Scan(
		&link.ID,
		&link.Code,
		&link.OriginalURL,
		&link.CustomAlias,
		&link.CreatedAt,
		&link.ExpiresAt,
		&link.IsActive,
		&link.Clicks,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shortener.ErrNotFound
		}

		return nil, err
	}

	link.CreatedAt = link.CreatedAt.UTC()

	if link.ExpiresAt != nil {
		expiresAt := link.ExpiresAt.UTC()
		link.ExpiresAt = &expiresAt
	}

	return &link, nil
}

func (p *PostgresStore) TokenInUse(ctx context.Context, token string, excludeID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM links
			WHERE (short_code = $1 OR custom_alias = $1) AND id <> $2
		)
	`

	var exists bool
	if err := p.pool.QueryRow(ctx, query, token, excludeID).Scan(&exists); err != nil {
		return false, err
	}

	return exists, nil
}

func (p *PostgresStore) Update(ctx context.Context, link *shortener.ShortLink) error {
	query := `
		UPDATE links
		SET short_code = $2, custom_alias = $3, expires_at = $4, is_active = $5
		WHERE id = $1
	`

	tag, err := p.pool.Exec(ctx, query,
		link.ID,
		string(link.Code),
		link.CustomAlias,
		link.ExpiresAt,
		link.IsActive,
	)
	if err != nil {
		return mapPgError(err)
	}

	if tag.RowsAffected() == 0 {
		return shortener.ErrNotFound
	}

	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, code shortener.Code) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM links WHERE short_code = $1`, string(code))
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return shortener.ErrNotFound
	}

	return nil
}

func (p *PostgresStore) RecordClick(ctx context.Context, code shortener.Code, click *shortener.ClickEvent) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	var clicks int64

	err = tx.QueryRow(ctx,
		`UPDATE links SET clicks = clicks + 1 WHERE short_code = $1 RETURNING id, clicks`,
		string(code),
	).Scan(&click.LinkID, &clicks)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shortener.ErrNotFound
		}

		return 0, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO clicks (link_id, timestamp, ip_address, user_agent, country, referrer)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		click.LinkID,
		click.Timestamp,
		click.IP,
		nullable(click.UserAgent),
		nullable(click.Country),
		nullable(click.Referrer),
	).Scan(&click.ID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return clicks, nil
}

func (p *PostgresStore) LookupLink(ctx context.Context, code string) (int64, int64, error) {
	var id, clicks int64

	err := p.pool.QueryRow(ctx, `SELECT id, clicks FROM links WHERE short_code = $1`, code).Scan(&id, &clicks)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, shortener.ErrNotFound
		}

		return 0, 0, err
	}

	return id, clicks, nil
}

func (p *PostgresStore) CountClicksSince(ctx context.Context, linkID int64, since time.Time) (int64, error) {
	var n int64

	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM clicks c WHERE c.link_id = $1 AND c.timestamp >= $2`,
		linkID, since,
	).Scan(&n)

	return n, err
}

func (p *PostgresStore) ClicksByCountry(ctx context.Context, linkID int64) (analytics.Breakdown, error) {
	query := `
		SELECT c.country, COUNT(*)
		FROM clicks c
		WHERE c.link_id = $1 AND c.country IS NOT NULL
		GROUP BY c.country
	`

	return p.breakdown(ctx, query, linkID)
}

func (p *PostgresStore) ClicksByDay(ctx context.Context, linkID int64, since time.Time) (analytics.Breakdown, error) {
	query := `
		SELECT to_char(c.timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM clicks c
		WHERE c.link_id = $1 AND c.timestamp >= $2
		GROUP BY day
	`

	return p.breakdown(ctx, query, linkID, since)
}

func (p *PostgresStore) RecentClicks(ctx context.Context, linkID int64, limit int) ([]analytics.Click, error) {
	query := `
		SELECT c.timestamp, c.ip_address, c.user_agent, c.country, c.referrer
		FROM clicks c
		WHERE c.link_id = $1
		ORDER BY c.timestamp DESC, c.id DESC
		LIMIT $2
	`

	rows, err := p.pool.Query(ctx, query, linkID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clicks := make([]analytics.Click, 0, limit)

	for rows.Next() {
		var (
			click                        analytics.Click
			userAgent, country, referrer *string
		)

		if err := rows.Scan(&click.Timestamp, &click.IP, &userAgent, &country, &referrer); err != nil {
			return nil, err
		}

		click.Timestamp = click.Timestamp.UTC()
		click.UserAgent = deref(userAgent)
		click.Country = deref(country)
		click.Referrer = deref(referrer)
		clicks = append(clicks, click)
	}

	return clicks, rows.Err()
}

func (p *PostgresStore) breakdown(ctx context.Context, query string, args ...any) (analytics.Breakdown, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := analytics.Breakdown{}

	for rows.Next() {
		var (
			label string
			n     int64
		)

		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}

		out[label] = n
	}

	return out, rows.Err()
}

// Ping checks database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}

	switch pgErr.ConstraintName {
	case constraintCustomAlias:
		return shortener.ErrAliasTaken
	case constraintShortCode:
		return shortener.ErrCodeTaken
	default:
		return err
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

// Compile-time checks.
var (
	_ shortener.Repository  = (*PostgresStore)(nil)
	_ analytics.ClickReader = (*PostgresStore)(nil)
)
