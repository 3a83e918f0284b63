package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"shortener.local/internal/app/shortlink"
	"shortener.local/internal/platform/metrics"
)

const notFoundSentinel = "__nil__"

const keyPrefix = "sl:"

type cachedRecord struct {
	OriginalURL string     `json:"original_url"`
	ShortCode   string     `json:"short_code"`
	CustomAlias string     `json:"custom_alias,omitempty"`
	VisitCount  int64      `json:"visit_count"`
	Expiry      *time.Time `json:"expiry,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RecordCache 是 Redis 上的共享缓存（L2），多实例之间共用。
type RecordCache struct {
	client   *redis.Client
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewRecordCache(client *redis.Client) *RecordCache {
	return &RecordCache{
		client:   client,
		ttl:      time.Hour,
		emptyTTL: 30 * time.Second,
	}
}

func (c *RecordCache) Get(ctx context.Context, code string) (shortlink.Record, lookup, error) {
	res, err := c.client.Get(ctx, keyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return shortlink.Record{}, lookupMiss, nil
	}
	if err != nil {
		metrics.CacheOperations.WithLabelValues("l2", "error").Inc()
		return shortlink.Record{}, lookupMiss, err
	}
	if res == notFoundSentinel {
		metrics.CacheOperations.WithLabelValues("l2", "hit_negative").Inc()
		return shortlink.Record{}, lookupNegative, nil
	}

	var cr cachedRecord
	if err := json.Unmarshal([]byte(res), &cr); err != nil {
		// 脏数据当作未命中，回源后会被覆盖
		metrics.CacheOperations.WithLabelValues("l2", "error").Inc()
		return shortlink.Record{}, lookupMiss, err
	}
	metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
	return shortlink.Record(cr), lookupHit, nil
}

func (c *RecordCache) Set(ctx context.Context, rec shortlink.Record) error {
	data, err := json.Marshal(cachedRecord(rec))
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+rec.ShortCode, data, c.ttl).Err()
}

// SetNotFound 用明确哨兵值做"负缓存"，避免缓存穿透。
// 不要用 "" 作为哨兵值（容易把"未命中"和"命中空值"混淆）。
func (c *RecordCache) SetNotFound(ctx context.Context, code string) error {
	return c.client.Set(ctx, keyPrefix+code, notFoundSentinel, c.emptyTTL).Err()
}
