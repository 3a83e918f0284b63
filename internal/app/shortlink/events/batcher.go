package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sink 批量消费事件，由 Batcher 在后台协程里调用。
type Sink interface {
	Write(ctx context.Context, batch []Event) error
}

// Batcher 基于带缓冲 channel 的 Publisher：请求协程只做非阻塞入队，
// 后台 Run 按条数或时间攒批交给 Sink。
type Batcher struct {
	ch        chan Event
	sink      Sink
	batchSize int
	interval  time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewBatcher(sink Sink, bufferSize int) *Batcher {
	return &Batcher{
		ch:        make(chan Event, bufferSize),
		sink:      sink,
		batchSize: 100,         //批量写入大小
		interval:  time.Second, //最大等待时间
		done:      make(chan struct{}),
	}
}

func (b *Batcher) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.ch <- event:
	default:
		// 通道满了，丢弃
		slog.Debug("event dropped: buffer full", "type", event.Type, "code", event.Code)
	}
}

// Close 停止接收新事件，等 Run 把剩余事件刷完再返回。
// Run 没有启动时不要调用 Close，否则会一直等。
func (b *Batcher) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.ch)
	b.mu.Unlock()
	<-b.done
}

// Run 阻塞消费，直到 Close 关闭通道。
// ctx 取消时把手上的批次和通道里已排队的事件刷完后退出，不等 Close；之后 Publish 的事件不再投递。
func (b *Batcher) Run(ctx context.Context) {
	defer close(b.done)

	batch := make([]Event, 0, b.batchSize)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain(batch)
			return
		case event, ok := <-b.ch:
			if !ok {
				b.flush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= b.batchSize {
				b.flush(batch)
				batch = batch[:0] //清空切片，但保留容量
			}
		case <-ticker.C:
			if len(batch) > 0 {
				b.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// drain 非阻塞地取走通道里已有的事件，按批刷出
func (b *Batcher) drain(batch []Event) {
	for {
		select {
		case event, ok := <-b.ch:
			if !ok {
				b.flush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= b.batchSize {
				b.flush(batch)
				batch = batch[:0]
			}
		default:
			b.flush(batch)
			return
		}
	}
}

func (b *Batcher) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.sink.Write(ctx, batch); err != nil {
		slog.Error("events: flush failed", "count", len(batch), "err", err)
		return
	}
	slog.Debug("events: flushed", "count", len(batch))
}

// LogSink 把事件写进日志，没有消息队列时使用。
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Write(ctx context.Context, batch []Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, e := range batch {
		logger.InfoContext(ctx, "shortlink event",
			"type", e.Type,
			"code", e.Code,
			"url", e.URL,
			"at", e.At,
			"request_id", e.RequestID)
	}
	return nil
}
