package bus

import (
	"sync"
	"sync/atomic"
)

// Broadcaster fans events out to subscriber channels. Publish never blocks:
// a subscriber whose buffer is full misses the event and the drop is counted.
// Each subscriber sees events in publish order.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   []chan T
	closed bool
	drops  atomic.Uint64
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscribe returns a channel receiving every later event. It is closed by Close.
func (b *Broadcaster[T]) Subscribe(buffer int) <-chan T {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan T, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers e to every subscriber with room for it.
func (b *Broadcaster[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.drops.Add(1)
		}
	}
}

// Drops is the number of events subscribers missed.
func (b *Broadcaster[T]) Drops() uint64 {
	return b.drops.Load()
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
