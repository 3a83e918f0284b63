package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"shortener.local/internal/app/shortlink"
)

type lookup int

const (
	lookupMiss     lookup = iota // 缓存里没有这个 key
	lookupHit                    // 命中记录
	lookupNegative               // 命中负缓存：确认过存储里没有
)

type localEntry struct {
	rec     shortlink.Record
	missing bool
}

// LocalCache 基于 ristretto 的本地内存缓存（L1）
type LocalCache struct {
	cache    *ristretto.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewLocalCache 创建本地缓存
// maxItems: 最大缓存条目数（建议 10000-100000）
// maxCost: 最大内存占用（字节，建议 16MB-64MB）
func NewLocalCache(maxItems int64, maxCost int64) (*LocalCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10, // 计数器数量，建议为 maxItems 的 10 倍
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		cache:    cache,
		ttl:      5 * time.Minute,  // 本地缓存 TTL 短一些，保证多实例一致性
		emptyTTL: 10 * time.Second, // 负缓存 TTL
	}, nil
}

func (l *LocalCache) Get(code string) (shortlink.Record, lookup) {
	v, ok := l.cache.Get(code)
	if !ok {
		return shortlink.Record{}, lookupMiss
	}
	entry, ok := v.(localEntry)
	if !ok {
		return shortlink.Record{}, lookupMiss
	}
	if entry.missing {
		return shortlink.Record{}, lookupNegative
	}
	return entry.rec, lookupHit
}

func (l *LocalCache) Set(rec shortlink.Record) {
	// cost=1 表示按条目数限制
	l.cache.SetWithTTL(rec.ShortCode, localEntry{rec: rec}, 1, l.ttl)
}

// SetNotFound 写负缓存并等它落地。
// 负缓存若还留在缓冲区，可能晚于随后的 Replace 生效，把刚写入的记录盖成 404。
func (l *LocalCache) SetNotFound(code string) {
	l.cache.SetWithTTL(code, localEntry{missing: true}, 1, l.emptyTTL)
	l.cache.Wait()
}

// Del 删除本地条目，同步生效。
func (l *LocalCache) Del(code string) {
	l.cache.Del(code)
}

// Replace 先删旧条目（通常是负缓存）再写入 rec，返回时写入已生效。
// 新条目被准入策略拒掉时只是少一次命中，不会留下负缓存。
func (l *LocalCache) Replace(rec shortlink.Record) {
	l.Del(rec.ShortCode)
	l.Set(rec)
	l.cache.Wait()
}

// Wait 阻塞到缓冲区里的写入全部生效。ristretto 的 Set 是异步的。
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
