package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/serroba/shortlink/internal/analytics"
	"github.com/serroba/shortlink/internal/shortener"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteTimeLayout is fixed width so stored timestamps compare lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// OpenSQLite opens a SQLite database with foreign keys enforced. dsn is a
// file path or a file: URI.
func OpenSQLite(dsn string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	db, err := sql.Open("sqlite", dsn+sep+"_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	// SQLite serializes writers; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

// SQLiteStore is a SQLite implementation of shortener.Repository and
// analytics.ClickReader.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed link store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Create(ctx context.Context, link *shortener.ShortLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO links (original_url, short_code, custom_alias, created_at, expires_at, is_active, clicks)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		link.OriginalURL,
		string(link.Code),
		link.CustomAlias,
		formatTime(link.CreatedAt),
		formatNullableTime(link.ExpiresAt),
		link.IsActive,
	)
	if err != nil {
		return mapSQLiteError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	link.ID = id
	link.CreatedAt = link.CreatedAt.UTC()
	link.Clicks = 0

	return nil
}

func (s *SQLiteStore) GetByCode(ctx context.Context, code shortener.Code) (*shortener.ShortLink, error) {
	var (
		link      shortener.ShortLink
		shortCode string
		alias     sql.NullString
		createdAt string
		expiresAt sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, short_code, original_url, custom_alias, created_at, expires_at, is_active, clicks
		FROM links
		WHERE short_code = ?`,
		string(code),
	).Scan(&link.ID, &shortCode, &link.OriginalURL, &alias, &createdAt, &expiresAt, &link.IsActive, &link.Clicks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shortener.ErrNotFound
		}

		return nil, err
	}

	link.Code = shortener.Code(shortCode)

	if alias.Valid {
		link.CustomAlias = &alias.String
	}

	if link.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		t, err := parseTime(expiresAt.String)
		if err != nil {
			return nil, err
		}

		link.ExpiresAt = &t
	}

	return &link, nil
}

func (s *SQLiteStore) TokenInUse(ctx context.Context, token string, excludeID int64) (bool, error) {
	var exists bool

	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM links
			WHERE (short_code = ?1 OR custom_alias = ?1) AND id <> ?2
		)`,
		token, excludeID,
	).Scan(&exists)

	return exists, err
}

func (s *SQLiteStore) Update(ctx context.Context, link *shortener.ShortLink) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE links
		SET short_code = ?, custom_alias = ?, expires_at = ?, is_active = ?
		WHERE id = ?`,
		string(link.Code),
		link.CustomAlias,
		formatNullableTime(link.ExpiresAt),
		link.IsActive,
		link.ID,
	)
	if err != nil {
		return mapSQLiteError(err)
	}

	return requireAffected(res)
}

func (s *SQLiteStore) Delete(ctx context.Context, code shortener.Code) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE short_code = ?`, string(code))
	if err != nil {
		return err
	}

	return requireAffected(res)
}

func (s *SQLiteStore) RecordClick(ctx context.Context, code shortener.Code, click *shortener.ClickEvent) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	defer func() { _ = tx.Rollback() }()

	var clicks int64

	err = tx.QueryRowContext(ctx,
		`UPDATE links SET clicks = clicks + 1 WHERE short_code = ? RETURNING id, clicks`,
		string(code),
	).Scan(&click.LinkID, &clicks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, shortener.ErrNotFound
		}

		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO clicks (link_id, timestamp, ip_address, user_agent, country, referrer)
		VALUES (?, ?, ?, ?, ?, ?)`,
		click.LinkID,
		formatTime(click.Timestamp),
		click.IP,
		nullable(click.UserAgent),
		nullable(click.Country),
		nullable(click.Referrer),
	)
	if err != nil {
		return 0, err
	}

	if click.ID, err = res.LastInsertId(); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return clicks, nil
}

func (s *SQLiteStore) LookupLink(ctx context.Context, code string) (int64, int64, error) {
	var id, clicks int64

	err := s.db.QueryRowContext(ctx, `SELECT id, clicks FROM links WHERE short_code = ?`, code).Scan(&id, &clicks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, shortener.ErrNotFound
		}

		return 0, 0, err
	}

	return id, clicks, nil
}

func (s *SQLiteStore) CountClicksSince(ctx context.Context, linkID int64, since time.Time) (int64, error) {
	var n int64

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clicks WHERE link_id = ? AND timestamp >= ?`,
		linkID, formatTime(since),
	).Scan(&n)

	return n, err
}

func (s *SQLiteStore) ClicksByCountry(ctx context.Context, linkID int64) (analytics.Breakdown, error) {
	return s.breakdown(ctx, `
		SELECT country, COUNT(*)
		FROM clicks
		WHERE link_id = ? AND country IS NOT NULL
		GROUP BY country`,
		linkID,
	)
}

func (s *SQLiteStore) ClicksByDay(ctx context.Context, linkID int64, since time.Time) (analytics.Breakdown, error) {
	return s.breakdown(ctx, `
		SELECT substr(timestamp, 1, 10) AS day, COUNT(*)
		FROM clicks
		WHERE link_id = ? AND timestamp >= ?
		GROUP BY day`,
		linkID, formatTime(since),
	)
}

func (s *SQLiteStore) RecentClicks(ctx context.Context, linkID int64, limit int) ([]analytics.Click, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, ip_address, user_agent, country, referrer
		FROM clicks
		WHERE link_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		linkID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clicks := make([]analytics.Click, 0, limit)

	for rows.Next() {
		var (
			click                        analytics.Click
			timestamp                    string
			userAgent, country, referrer sql.NullString
		)

		if err := rows.Scan(&timestamp, &click.IP, &userAgent, &country, &referrer); err != nil {
			return nil, err
		}

		if click.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}

		click.UserAgent = userAgent.String
		click.Country = country.String
		click.Referrer = referrer.String
		clicks = append(clicks, click)
	}

	return clicks, rows.Err()
}

func (s *SQLiteStore) breakdown(ctx context.Context, query string, args ...any) (analytics.Breakdown, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Shutdown closes the database.
func (s *SQLiteStore) Shutdown() error {
	return s.db.Close()
}

func mapSQLiteError(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	// Primary code when extended result codes are off.
	if code := sqliteErr.Code(); code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT {
		return err
	}

	// The message names the column: "UNIQUE constraint failed: links.custom_alias".
	msg := sqliteErr.Error()

	switch {
	case strings.Contains(msg, "links.custom_alias"):
		return shortener.ErrAliasTaken
	case strings.Contains(msg, "links.short_code"):
		return shortener.ErrCodeTaken
	default:
		return err
	}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return shortener.ErrNotFound
	}

	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}

	s := formatTime(*t)

	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, err
	}

	return t.UTC(), nil
}

// Compile-time checks.
var (
	_ shortener.Repository  = (*SQLiteStore)(nil)
	_ analytics.ClickReader = (*SQLiteStore)(nil)
)
