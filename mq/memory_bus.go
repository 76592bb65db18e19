package mq

import (
	"context"
	"log"
	"sync"
)

// MemoryBus 进程内事件总线
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[chan TallyEvent]struct{}
}

// NewMemoryBus 创建进程内事件总线
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[chan TallyEvent]struct{})}
}

// Publish 非阻塞投递，订阅者缓冲区满时丢弃该事件
func (b *MemoryBus) Publish(_ context.Context, event TallyEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			log.Printf("订阅者缓冲区已满，丢弃选举 %s 的计票事件", event.ElectionID)
		}
	}
	return nil
}

// Subscribe 阻塞接收事件直到 ctx 结束
func (b *MemoryBus) Subscribe(ctx context.Context, handler Handler) error {
	ch := make(chan TallyEvent, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-ch:
			handler(event)
		}
	}
}
