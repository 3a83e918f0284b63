package repo

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"shortener.local/internal/app/shortlink"
)

// 唯一约束名，和 migrations/001_create_shortlinks.sql 保持一致。
const (
	shortCodeConstraint   = "shortlinks_short_code_key"
	customAliasConstraint = "shortlinks_custom_alias_key"
)

const pgUniqueViolation = "23505"

const selectColumns = "original_url, short_code, custom_alias, visit_count, expiry, created_at, updated_at"

// ShortlinksRepo 是基于 Postgres 的 shortlink.Store 实现。
type ShortlinksRepo struct {
	db *pgxpool.Pool
}

func NewShortlinksRepo(db *pgxpool.Pool) *ShortlinksRepo {
	return &ShortlinksRepo{
		db: db,
	}
}

var _ shortlink.Store = (*ShortlinksRepo)(nil)

func (s *ShortlinksRepo) FindByCode(ctx context.Context, code string) (shortlink.Record, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	row := s.db.QueryRow(dbctx, "SELECT "+selectColumns+" FROM shortlinks WHERE short_code=$1", code)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortlink.Record{}, shortlink.ErrRecordNotFound
		}
		slog.Error("find shortlink by code failed", "code", code, "err", err)
		return shortlink.Record{}, err
	}
	return rec, nil
}

// FindByURL 精确匹配原始 URL；并发竞态下可能有多条，取最早的一条。
func (s *ShortlinksRepo) FindByURL(ctx context.Context, originalURL string) (shortlink.Record, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	row := s.db.QueryRow(dbctx, "SELECT "+selectColumns+" FROM shortlinks WHERE original_url=$1 ORDER BY id LIMIT 1", originalURL)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortlink.Record{}, shortlink.ErrRecordNotFound
		}
		slog.Error("find shortlink by url failed", "err", err)
		return shortlink.Record{}, err
	}
	return rec, nil
}

/*
插入一条新记录。short_code 和非空 custom_alias 都有唯一约束，
冲突时整条 INSERT 失败，不会留下半条记录；按约束名翻译成领域错误。
*/
func (s *ShortlinksRepo) Insert(ctx context.Context, rec *shortlink.Record) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := s.db.QueryRow(dbctx,
		"INSERT INTO shortlinks (original_url, short_code, custom_alias, visit_count, expiry) VALUES ($1,$2,$3,$4,$5) RETURNING created_at, updated_at",
		rec.OriginalURL, rec.ShortCode, rec.CustomAlias, rec.VisitCount, rec.Expiry,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if conflict := classifyConflict(err); conflict != nil {
			return conflict
		}
		slog.Error("insert shortlink failed", "code", rec.ShortCode, "err", err)
		return err
	}
	return nil
}

// IncrementVisits 用单条 UPDATE 原子自增，避免并发解析时丢计数。
func (s *ShortlinksRepo) IncrementVisits(ctx context.Context, code string) (int64, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var count int64
	err := s.db.QueryRow(dbctx,
		"UPDATE shortlinks SET visit_count = visit_count + 1, updated_at = now() WHERE short_code=$1 RETURNING visit_count",
		code,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shortlink.ErrRecordNotFound
		}
		slog.Error("increment visits failed", "code", code, "err", err)
		return 0, err
	}
	return count, nil
}

// ForEachCode 流式遍历所有短码，启动时用来预热布隆过滤器。
func (s *ShortlinksRepo) ForEachCode(ctx context.Context, fn func(code string) error) error {
	rows, err := s.db.Query(ctx, "SELECT short_code FROM shortlinks")
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			slog.Error(err.Error())
			return err
		}
		if err := fn(code); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanRecord(row pgx.Row) (shortlink.Record, error) {
	var rec shortlink.Record
	err := row.Scan(&rec.OriginalURL, &rec.ShortCode, &rec.CustomAlias, &rec.VisitCount, &rec.Expiry, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func classifyConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return nil
	}
	switch name := strings.ToLower(pgErr.ConstraintName); {
	case name == customAliasConstraint || strings.Contains(name, "alias"):
		return shortlink.ErrAliasConflict
	case name == shortCodeConstraint || strings.Contains(name, "code"):
		return shortlink.ErrCodeConflict
	}
	return nil
}
