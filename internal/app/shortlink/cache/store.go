package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shortener.local/internal/app/shortlink"
	"shortener.local/internal/platform/metrics"
)

const remoteTimeout = 50 * time.Millisecond

// CachedStore 给任意 shortlink.Store 套上读缓存。
//
// 查询顺序：布隆过滤器（预热后）-> L1 本地 -> L2 Redis -> 底层存储。
// 唯一约束和计数自增始终由底层存储完成，缓存只加速 FindByCode；
// 缓存故障只记日志，不影响业务结果。
type CachedStore struct {
	inner  shortlink.Store
	local  *LocalCache
	remote *RecordCache
	bloom  *BloomFilter
}

// NewCachedStore 的 local / remote / bloom 都可以为 nil，表示不启用该层。
func NewCachedStore(inner shortlink.Store, local *LocalCache, remote *RecordCache, bloom *BloomFilter) *CachedStore {
	return &CachedStore{
		inner:  inner,
		local:  local,
		remote: remote,
		bloom:  bloom,
	}
}

var _ shortlink.Store = (*CachedStore)(nil)

func (c *CachedStore) FindByCode(ctx context.Context, code string) (shortlink.Record, error) {
	if c.bloom != nil && c.bloom.Ready() && !c.bloom.MightExist(code) {
		metrics.CacheOperations.WithLabelValues("bloom", "reject").Inc()
		return shortlink.Record{}, shortlink.ErrRecordNotFound
	}

	// L1
	if c.local != nil {
		rec, res := c.local.Get(code)
		switch res {
		case lookupHit:
			metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			return rec, nil
		case lookupNegative:
			metrics.CacheOperations.WithLabelValues("l1", "hit_negative").Inc()
			return shortlink.Record{}, shortlink.ErrRecordNotFound
		}
		metrics.CacheOperations.WithLabelValues("l1", "miss").Inc()
	}

	// L2，命中后回填 L1
	if c.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
		rec, res, err := c.remote.Get(rctx, code)
		cancel()
		if err != nil {
			slog.Warn("shortlink cache get failed", "code", code, "err", err)
		}
		switch res {
		case lookupHit:
			if c.local != nil {
				c.local.Set(rec)
			}
			return rec, nil
		case lookupNegative:
			if c.local != nil {
				c.local.SetNotFound(code)
			}
			return shortlink.Record{}, shortlink.ErrRecordNotFound
		}
	}

	rec, err := c.inner.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shortlink.ErrRecordNotFound) {
			c.setNotFound(ctx, code)
		}
		return shortlink.Record{}, err
	}
	c.set(ctx, rec)
	return rec, nil
}

func (c *CachedStore) FindByURL(ctx context.Context, originalURL string) (shortlink.Record, error) {
	return c.inner.FindByURL(ctx, originalURL)
}

// Insert 成功后立刻替换缓存，清掉此前可能存在的负缓存（例如别名检查时写下的 "__nil__"）。
// 本地缓存用 Replace：异步 Set 撞上未落地的负缓存会被丢弃，刚建好的别名就会 404。
func (c *CachedStore) Insert(ctx context.Context, rec *shortlink.Record) error {
	if err := c.inner.Insert(ctx, rec); err != nil {
		return err
	}
	if c.bloom != nil {
		c.bloom.Add(rec.ShortCode)
	}
	if c.local != nil {
		c.local.Replace(*rec)
	}
	c.setRemote(ctx, *rec)
	return nil
}

// IncrementVisits 以底层存储的原子自增为准；
// 本地有缓存时顺手刷新计数，缓存里的计数是最终一致的。
func (c *CachedStore) IncrementVisits(ctx context.Context, code string) (int64, error) {
	count, err := c.inner.IncrementVisits(ctx, code)
	if err != nil {
		return 0, err
	}
	if c.local != nil {
		if rec, res := c.local.Get(code); res == lookupHit && rec.VisitCount < count {
			rec.VisitCount = count
			c.set(ctx, rec)
		}
	}
	return count, nil
}

// Close 关闭本地缓存
func (c *CachedStore) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("本地缓存已关闭")
	}
}

func (c *CachedStore) set(ctx context.Context, rec shortlink.Record) {
	if c.local != nil {
		c.local.Set(rec)
	}
	c.setRemote(ctx, rec)
}

func (c *CachedStore) setRemote(ctx context.Context, rec shortlink.Record) {
	if c.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
		defer cancel()
		if err := c.remote.Set(rctx, rec); err != nil {
			slog.Warn("shortlink cache set failed", "code", rec.ShortCode, "err", err)
		}
	}
}

func (c *CachedStore) setNotFound(ctx context.Context, code string) {
	if c.local != nil {
		c.local.SetNotFound(code)
	}
	if c.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
		defer cancel()
		if err := c.remote.SetNotFound(rctx, code); err != nil {
			slog.Warn("shortlink cache set not found failed", "code", code, "err", err)
		}
	}
}
