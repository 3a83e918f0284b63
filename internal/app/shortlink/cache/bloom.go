package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 挡住"一定不存在"的短码，防止随机码扫描打穿到数据库。
//
// 只有 Warm 成功把全部已有短码灌进来之后才会参与判断；
// 之前 Ready 为 false，CachedStore 直接跳过它。
type BloomFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
	ready  atomic.Bool
}

// NewBloomFilter 创建布隆过滤器
// expectedItems: 预期存储的元素数量
// falsePositiveRate: 误判率（建议 0.01 即 1%）
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	return &BloomFilter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

// 添加元素到布隆过滤器
func (b *BloomFilter) Add(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.AddString(code)
}

// MightExist 检查元素是否可能存在
// 返回 false 表示一定不存在
// 返回 true 表示可能存在（有误判率）
func (b *BloomFilter) MightExist(code string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.TestString(code)
}

// Count 返回已添加的元素数量（估算）
func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}

func (b *BloomFilter) Ready() bool {
	return b.ready.Load()
}

// Warm 遍历存储里的全部短码写入过滤器，成功后置为 Ready。
func (b *BloomFilter) Warm(ctx context.Context, forEach func(ctx context.Context, fn func(code string) error) error) error {
	if err := forEach(ctx, func(code string) error {
		b.Add(code)
		return nil
	}); err != nil {
		return err
	}
	b.ready.Store(true)
	return nil
}
