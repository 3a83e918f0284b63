// Package sqlitestore 是单文件部署用的 shortlink.Store，基于纯 Go 的 modernc.org/sqlite（不需要 CGO）。
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
	"shortener.local/internal/app/shortlink"
)

// 时间统一存 UTC 的 unix 纳秒，避免驱动对 TIMESTAMP 文本格式的差异。
const schemaSQL = `
CREATE TABLE IF NOT EXISTS shortlinks (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  original_url TEXT    NOT NULL,
  short_code   TEXT    NOT NULL UNIQUE,
  custom_alias TEXT    NOT NULL DEFAULT '',
  visit_count  INTEGER NOT NULL DEFAULT 0 CHECK (visit_count >= 0),
  expiry       INTEGER NULL,
  created_at   INTEGER NOT NULL,
  updated_at   INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS shortlinks_custom_alias_key
  ON shortlinks (custom_alias) WHERE custom_alias <> '';

CREATE INDEX IF NOT EXISTS shortlinks_original_url_idx ON shortlinks (original_url);
`

const selectColumns = "original_url, short_code, custom_alias, visit_count, expiry, created_at, updated_at"

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ shortlink.Store = (*Store)(nil)

// Open 打开（不存在则创建）path 处的数据库并建表。path 为 ":memory:" 时只在进程内有效。
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite 只有一个写者，单连接让 UPDATE ... RETURNING 天然串行
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			slog.Warn("sqlite pragma failed", "pragma", pragma, "err", err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) FindByCode(ctx context.Context, code string) (shortlink.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM shortlinks WHERE short_code = ?", code)
	return scanRecord(row)
}

// FindByURL 多条时取最早插入的一条。
func (s *Store) FindByURL(ctx context.Context, originalURL string) (shortlink.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM shortlinks WHERE original_url = ? ORDER BY id LIMIT 1", originalURL)
	return scanRecord(row)
}

func (s *Store) Insert(ctx context.Context, rec *shortlink.Record) error {
	now := s.now().UTC()
	var expiry sql.NullInt64
	if rec.Expiry != nil {
		expiry = sql.NullInt64{Int64: rec.Expiry.UTC().UnixNano(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shortlinks (original_url, short_code, custom_alias, visit_count, expiry, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.OriginalURL, rec.ShortCode, rec.CustomAlias, rec.VisitCount, expiry, now.UnixNano(), now.UnixNano())
	if err != nil {
		return classify(err)
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

func (s *Store) IncrementVisits(ctx context.Context, code string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"UPDATE shortlinks SET visit_count = visit_count + 1, updated_at = ? WHERE short_code = ? RETURNING visit_count",
		s.now().UTC().UnixNano(), code).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, shortlink.ErrRecordNotFound
	}
	return count, err
}

// ForEachCode 遍历全部短码，用于布隆过滤器预热。
func (s *Store) ForEachCode(ctx context.Context, fn func(code string) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT short_code FROM shortlinks")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return err
		}
		if err := fn(code); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanRecord(row *sql.Row) (shortlink.Record, error) {
	var (
		rec                  shortlink.Record
		expiry               sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&rec.OriginalURL, &rec.ShortCode, &rec.CustomAlias, &rec.VisitCount, &expiry, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shortlink.Record{}, shortlink.ErrRecordNotFound
		}
		return shortlink.Record{}, err
	}
	if expiry.Valid {
		t := time.Unix(0, expiry.Int64).UTC()
		rec.Expiry = &t
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec, nil
}

// classify 把唯一约束冲突翻译成 shortlink 的冲突错误。SQLite 的消息里带冲突列名：
// "UNIQUE constraint failed: shortlinks.custom_alias"。
func classify(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return err
	}
	switch msg := se.Error(); {
	case strings.Contains(msg, "shortlinks.custom_alias"):
		return fmt.Errorf("%w: %v", shortlink.ErrAliasConflict, err)
	case strings.Contains(msg, "shortlinks.short_code"):
		return fmt.Errorf("%w: %v", shortlink.ErrCodeConflict, err)
	}
	return err
}
