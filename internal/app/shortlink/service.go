package shortlink

import (
	"context"
	"errors"
	"time"
)

// Record 是短链的唯一实体。
//
// 说明：
// - ShortCode：全局唯一，解析时的主键；过期记录的码也不会被回收
// - CustomAlias：用户自定义别名，非空时与 ShortCode 相同；空串表示"没有别名"
// - VisitCount：只在成功且未过期的解析时 +1
// - Expiry：nil 表示永不过期；过期只在读取时判断，记录不会被删除
// - CreatedAt/UpdatedAt：由存储层维护
type Record struct {
	OriginalURL string
	ShortCode   string
	CustomAlias string
	VisitCount  int64
	Expiry      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expired reports whether the record has an expiry earlier than now.
func (r Record) Expired(now time.Time) bool {
	return r.Expiry != nil && r.Expiry.Before(now)
}

// Store 是记录存储的协作方接口。
//
// 约定：
// - FindByCode / FindByURL 查不到时返回 ErrRecordNotFound；FindByURL 按字节精确匹配，多条时返回最早的一条
// - Insert 在唯一约束冲突时原子失败，返回 ErrCodeConflict 或 ErrAliasConflict，成功时回填时间戳
// - IncrementVisits 必须是原子的"自增并返回新值"，不能是读-改-写
type Store interface {
	FindByCode(ctx context.Context, code string) (Record, error)
	FindByURL(ctx context.Context, originalURL string) (Record, error)
	Insert(ctx context.Context, rec *Record) error
	IncrementVisits(ctx context.Context, code string) (int64, error)
}

// Creator 表示"创建短链"的用例能力。alias 为空表示由生成器出码。
type Creator interface {
	CreateShortLink(ctx context.Context, originalURL string, alias string) (Record, error)
}

// Resolver 表示"解析短码并返回目标 URL"的用例能力，成功时访问计数 +1。
type Resolver interface {
	ResolveShortLink(ctx context.Context, code string) (string, error)
}

// Service 编排别名检查、按原始 URL 去重、建码落库以及解析时的过期判断与计数。
//
// Service 自身不持有锁和缓存：并发下的唯一性由 Store 的唯一约束裁决，
// 计数由 Store 的原子自增保证不丢。
type Service struct {
	store Store
	gen   CodeGenerator
	now   func() time.Time
}

type Option func(*Service)

// WithClock 替换时间源，测试里用来构造"已过期"的场景。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, gen CodeGenerator, opts ...Option) *Service {
	s := &Service{
		store: store,
		gen:   gen,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateShortLink 创建短链。
//
// 流程：
//  1. 有 alias 时先按 short_code 查，存在（不论是否过期）即 ErrAliasTaken
//  2. 按原始 URL 查，存在则原样返回（幂等去重，不检查过期）
//  3. 出码：有 alias 用 alias，否则调用生成器
//  4. 新建记录并落库
//
// 1~4 整体不是原子的：同一 alias 的并发请求都可能通过第 1 步，
// 这时由存储的唯一约束拦下后来者并翻译成 ErrAliasTaken。
// 同一新 URL 的并发请求可能各自建出一条记录，这是已知限制，不做重试。
func (s *Service) CreateShortLink(ctx context.Context, originalURL string, alias string) (Record, error) {
	if originalURL == "" {
		return Record{}, ErrMissingURL
	}

	if alias != "" {
		_, err := s.store.FindByCode(ctx, alias)
		if err == nil {
			return Record{}, ErrAliasTaken
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return Record{}, persistence("find by code", err)
		}
	}

	existing, err := s.store.FindByURL(ctx, originalURL)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return Record{}, persistence("find by url", err)
	}

	rec := Record{
		OriginalURL: originalURL,
		ShortCode:   s.gen.Generate(alias),
		CustomAlias: alias,
		VisitCount:  0,
	}
	if err := s.store.Insert(ctx, &rec); err != nil {
		switch {
		case errors.Is(err, ErrAliasConflict):
			return Record{}, ErrAliasTaken
		case errors.Is(err, ErrCodeConflict) && alias != "":
			return Record{}, ErrAliasTaken
		default:
			// 生成码撞上已有码也走这里：单次尝试，不重试
			return Record{}, persistence("insert", err)
		}
	}
	return rec, nil
}

// ResolveShortLink 返回短码对应的原始 URL，并原子地把访问计数 +1。
// 不存在与已过期对调用方不可区分，都返回 ErrNotFound。
func (s *Service) ResolveShortLink(ctx context.Context, code string) (string, error) {
	rec, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", persistence("find by code", err)
	}
	if rec.Expired(s.now()) {
		return "", ErrNotFound
	}

	if _, err := s.store.IncrementVisits(ctx, code); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", persistence("increment visits", err)
	}
	return rec.OriginalURL, nil
}

// Lookup 只读地返回记录（过期的也返回），不改变计数。
func (s *Service) Lookup(ctx context.Context, code string) (Record, error) {
	rec, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, persistence("find by code", err)
	}
	return rec, nil
}
