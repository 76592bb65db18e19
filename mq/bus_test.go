package mq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryBusFanOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		received = map[int][]string{}
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = bus.Subscribe(ctx, func(e TallyEvent) {
				mu.Lock()
				received[id] = append(received[id], e.ElectionID)
				mu.Unlock()
			})
		}(i)
	}
	// 等待两个订阅者都注册完毕
	require.Eventually(t, func() bool {
		mb := bus.(*MemoryBus)
		mb.mu.RLock()
		defer mb.mu.RUnlock()
		return len(mb.subs) == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, TallyEvent{ElectionID: "e1"}))
	require.NoError(t, bus.Publish(ctx, TallyEvent{ElectionID: "e2"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received[0]) == 2 && len(received[1]) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
}
