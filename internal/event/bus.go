package event

import "sync"

// Subscriber receives published events.
type Subscriber func(Event)

// Bus fans raised events out to subscribers. Publishing never blocks:
// each subscriber has a buffered channel drained by its own goroutine,
// and a full buffer drops the event for that subscriber. With at most
// one pending event outstanding at a time a drop cannot occur in
// practice, but the publisher must never be stalled by a slow client.
type Bus struct {
	mu          sync.Mutex
	subscribers []chan Event
	bufferSize  int
	closed      bool
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe registers fn to receive all published events. The returned
// function unsubscribes.
func (b *Bus) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}

	ch := make(chan Event, b.bufferSize)
	b.subscribers = append(b.subscribers, ch)

	go func() {
		for ev := range ch {
			func() {
				defer func() {
					// A panicking subscriber must not disrupt the bus.
					_ = recover()
				}()
				fn(ev)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subscribers {
			if sub == ch {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

// Publish delivers ev to all current subscribers without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close tears down all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
