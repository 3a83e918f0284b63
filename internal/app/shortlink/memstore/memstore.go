// Package memstore 是进程内的记录存储，用于测试和 STORE_DRIVER=memory。
package memstore

import (
	"context"
	"sync"
	"time"

	"shortener.local/internal/app/shortlink"
)

// Store 用一把互斥锁保护全部索引，唯一约束和自增都在锁内完成，
// 语义与 Postgres 的唯一索引 + UPDATE ... RETURNING 一致。
type Store struct {
	mu      sync.Mutex
	byCode  map[string]*shortlink.Record
	byAlias map[string]string   // custom_alias -> short_code，空串不入索引
	byURL   map[string][]string // original_url -> 按插入顺序的 short_code
	now     func() time.Time
}

func New() *Store {
	return &Store{
		byCode:  make(map[string]*shortlink.Record),
		byAlias: make(map[string]string),
		byURL:   make(map[string][]string),
		now:     time.Now,
	}
}

var _ shortlink.Store = (*Store)(nil)

func (s *Store) FindByCode(ctx context.Context, code string) (shortlink.Record, error) {
	if err := ctx.Err(); err != nil {
		return shortlink.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byCode[code]
	if !ok {
		return shortlink.Record{}, shortlink.ErrRecordNotFound
	}
	return clone(rec), nil
}

func (s *Store) FindByURL(ctx context.Context, originalURL string) (shortlink.Record, error) {
	if err := ctx.Err(); err != nil {
		return shortlink.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.byURL[originalURL]
	if len(codes) == 0 {
		return shortlink.Record{}, shortlink.ErrRecordNotFound
	}
	return clone(s.byCode[codes[0]]), nil
}

func (s *Store) Insert(ctx context.Context, rec *shortlink.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(rec); err != nil {
		return err
	}
	now := s.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.put(rec)
	return nil
}

func (s *Store) IncrementVisits(ctx context.Context, code string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byCode[code]
	if !ok {
		return 0, shortlink.ErrRecordNotFound
	}
	rec.VisitCount++
	rec.UpdatedAt = s.now()
	return rec.VisitCount, nil
}

// Put 按原样写入一条记录（保留调用方给的时间戳、计数和过期时间），
// 仍然执行唯一约束检查。用于预置数据，例如构造已过期的记录。
func (s *Store) Put(rec shortlink.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(&rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	s.put(&rec)
	return nil
}

// Len 返回记录总数。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byCode)
}

// ForEachCode 遍历所有短码，fn 返回错误时停止。
func (s *Store) ForEachCode(ctx context.Context, fn func(code string) error) error {
	s.mu.Lock()
	codes := make([]string, 0, len(s.byCode))
	for code := range s.byCode {
		codes = append(codes, code)
	}
	s.mu.Unlock()

	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(code); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) checkUnique(rec *shortlink.Record) error {
	if _, ok := s.byCode[rec.ShortCode]; ok {
		return shortlink.ErrCodeConflict
	}
	if rec.CustomAlias != "" {
		if _, ok := s.byAlias[rec.CustomAlias]; ok {
			return shortlink.ErrAliasConflict
		}
	}
	return nil
}

func (s *Store) put(rec *shortlink.Record) {
	stored := clone(rec)
	s.byCode[stored.ShortCode] = &stored
	if stored.CustomAlias != "" {
		s.byAlias[stored.CustomAlias] = stored.ShortCode
	}
	s.byURL[stored.OriginalURL] = append(s.byURL[stored.OriginalURL], stored.ShortCode)
}

func clone(rec *shortlink.Record) shortlink.Record {
	out := *rec
	if rec.Expiry != nil {
		exp := *rec.Expiry
		out.Expiry = &exp
	}
	return out
}
