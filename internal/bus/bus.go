// Package bus is a small in-process fan-out for typed events. The sync
// coordinator and the daemon publish on it; the presentation layer
// subscribes. Publishing never blocks: a subscriber that falls behind
// loses its oldest buffered events, not the publisher's time.
package bus

import "sync"

// Bus fans each published event out to every subscriber.
type Bus[T any] struct {
	mu   sync.Mutex
	subs map[int]chan T
	next int
	size int
}

// New creates a bus whose subscriber channels buffer size events each.
func New[T any](size int) *Bus[T] {
	if size < 1 {
		size = 1
	}
	return &Bus[T]{subs: make(map[int]chan T), size: size}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel func. Cancel closes the channel and is safe to call twice.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan T, b.size)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking. When a
// subscriber's buffer is full its oldest event is dropped to make room.
func (b *Bus[T]) Publish(ev T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
