// Package runstream 承载一次流式运行的事件通道与 SSE 下发。
// 生产者（运行编排）与消费者（HTTP handler）解耦：生产者写有界通道，
// 消费者断开只会取消 ctx，落库等副作用由生产者自行收尾。
package runstream

import (
	"context"
	"errors"
	"sync"
)

// Event 是一个 SSE 帧；Data 必须是单行 JSON 文本。
type Event struct {
	Name string
	Data string
}

// ErrClosed 表示流已被生产者关闭。
var ErrClosed = errors.New("运行流已关闭")

// Stream 是单生产者单消费者的事件流。
type Stream struct {
	ch chan Event

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	err    error
}

func New(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 16
	}
	return &Stream{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
}

// Emit 投递一个事件；消费者缓冲满时阻塞，流关闭或 ctx 取消时放弃。
func (s *Stream) Emit(ctx context.Context, ev Event) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.ch <- ev:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 由生产者调用，err 记录运行以何种结果收尾；重复调用无效。
func (s *Stream) Close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.done)
	close(s.ch)
}

// Events 返回事件通道；流关闭后通道被 close。
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Err 返回生产者收尾时记录的错误，须在流关闭后读取。
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
