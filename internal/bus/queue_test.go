package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renkotrader/pkg/exception"
)

func TestQueueTryPublish(t *testing.T) {
	q := NewQueue[int](2)

	require.NoError(t, q.TryPublish(1))
	require.NoError(t, q.TryPublish(2))
	assert.ErrorIs(t, q.TryPublish(3), exception.ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	q.Close()
	q.Close()
	assert.ErrorIs(t, q.TryPublish(4), exception.ErrQueueClosed)

	var got []int
	q.Run(t.Context(), func(v int) { got = append(got, v) })
	assert.Equal(t, []int{1, 2}, got)
}

func TestQueueRunStopsOnContext(t *testing.T) {
	q := NewQueue[string](4)
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, func(string) {})
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster[int]()
	fast := b.Subscribe(8)
	slow := b.Subscribe(1)

	for i := 1; i <= 3; i++ {
		b.Publish(i)
	}

	assert.Equal(t, 1, <-fast)
	assert.Equal(t, 2, <-fast)
	assert.Equal(t, 3, <-fast)
	assert.Equal(t, 1, <-slow)
	assert.Equal(t, uint64(2), b.Drops())

	b.Close()
	_, ok := <-fast
	assert.False(t, ok)
	b.Publish(4)

	late := b.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
}

func TestBroadcasterConcurrentPublish(t *testing.T) {
	b := NewBroadcaster[int]()
	sub := b.Subscribe(1000)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Publish(i)
			}
		}()
	}
	wg.Wait()
	b.Close()

	count := 0
	for range sub {
		count++
	}
	assert.Equal(t, 1000, count)
	assert.Zero(t, b.Drops())
}
