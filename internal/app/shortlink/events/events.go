// Package events 把短链的生命周期事件（创建、访问）异步投递出去。
//
// 投递失败、缓冲区满都只丢事件不报错：事件不参与短链本身的正确性，
// 访问计数以存储里的 visit_count 为准。
package events

import "time"

type Type string

const (
	TypeShortened Type = "link.shortened"
	TypeVisited   Type = "link.visited"
)

type Event struct {
	Type      Type      `json:"type"`
	Code      string    `json:"code"`
	URL       string    `json:"url"`
	At        time.Time `json:"at"`
	RequestID string    `json:"request_id,omitempty"`
}

// Publisher 由 HTTP 层在操作成功后调用，Publish 不能阻塞请求。
type Publisher interface {
	Publish(event Event)
	Close()
}

// Nop 丢弃全部事件。
type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Close()        {}
