// Package bus fans the normalized event stream out to the append sink
// and any number of streaming subscribers.
//
// The sink is authoritative: publishing blocks while its channel is
// full, so a slow writer backpressures the normalizer instead of losing
// events. Streaming subscribers get bounded queues; when one falls
// behind, its oldest events are dropped and counted.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/mimic/internal/event"
)

// DefaultCapacity is the sink channel depth used when the caller passes 0.
const DefaultCapacity = 4096

type Bus struct {
	sink chan event.Event

	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{sink: make(chan event.Event, capacity)}
}

// Sink returns the channel the append writer drains. Events arrive in
// publish order and nothing is ever dropped from it.
func (b *Bus) Sink() <-chan event.Event {
	return b.sink
}

// Subscribe registers a streaming consumer with a queue of the given
// depth (DefaultCapacity when 0). The subscriber receives every event
// published after this call, minus any it was too slow to take.
func (b *Bus) Subscribe(depth int) *Subscription {
	if depth <= 0 {
		depth = DefaultCapacity
	}
	s := &Subscription{ch: make(chan event.Event, depth)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs = append(b.subs, s)
	return s
}

// Publish delivers one event to the sink and all subscribers. Called
// only by the normalizer, so every consumer sees publish order.
func (b *Bus) Publish(e event.Event) {
	b.sink <- e

	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()
	for _, s := range subs {
		s.offer(e)
	}
}

// Close ends the stream: the sink channel and every subscriber queue
// are closed, and later Subscribe calls return already-ended
// subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.sink)
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
}

// Subscription is one streaming consumer's view of the bus.
type Subscription struct {
	ch   chan event.Event
	lost atomic.Uint64
}

// offer enqueues without blocking, evicting the oldest queued event
// when the subscriber is full.
func (s *Subscription) offer(e event.Event) {
	for {
		select {
		case s.ch <- e:
			return
		default:
		}
		select {
		case <-s.ch:
			s.lost.Add(1)
		default:
		}
	}
}

// Events exposes the receiver endpoint; it is closed when the bus closes.
func (s *Subscription) Events() <-chan event.Event {
	return s.ch
}

// Next blocks for the next event; ok is false once the stream has ended.
func (s *Subscription) Next() (e event.Event, ok bool) {
	e, ok = <-s.ch
	return e, ok
}

// Lost reports how many events were dropped because this subscriber
// fell behind.
func (s *Subscription) Lost() uint64 {
	return s.lost.Load()
}
