// Package progress provides the fan-out stream that relays compression
// progress and terminal events to observers.
package progress

import (
	"sync"
)

// Kind identifies the type of an Event.
type Kind string

const (
	// KindProgress carries the completed fraction of the active job.
	KindProgress Kind = "progress"
	// KindCompleted marks a job that produced output.
	KindCompleted Kind = "completed"
	// KindSkipped marks a request the compression policy declined.
	KindSkipped Kind = "skipped"
	// KindFailed marks a job the encoder could not finish.
	KindFailed Kind = "failed"
	// KindCancelled marks a job stopped by cancellation.
	KindCancelled Kind = "cancelled"
	// KindTimedOut marks a job abandoned after its deadline.
	KindTimedOut Kind = "timed_out"
)

// IsTerminal returns true if the kind ends a job.
func (k Kind) IsTerminal() bool {
	return k != KindProgress
}

// Event is a single progress notification.
type Event struct {
	Kind     Kind    `json:"kind"`
	JobID    string  `json:"job_id,omitempty"`
	Fraction float64 `json:"fraction"`
}

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 64

// Broadcaster delivers events to every current subscriber.
// Publish never blocks: events are dropped for subscribers whose buffer is
// full, and published with no subscribers at all they are discarded.
// Subscribers joining late receive no replay.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

// NewBroadcaster creates a Broadcaster. A buffer <= 0 uses the default size.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscription is a handle to a subscriber's event channel.
type Subscription struct {
	ch   chan Event
	b    *Broadcaster
	once sync.Once
}

// C returns the channel events are delivered on. It is closed when the
// subscription or the broadcaster is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.b.remove(s)
}

// Subscribe registers a new subscriber. Subscribing to a closed broadcaster
// returns a subscription whose channel is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan Event, b.buffer), b: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers e to every subscriber without blocking.
// It returns the number of subscribers that received the event.
func (b *Broadcaster) Publish(e Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for sub := range b.subs {
		select {
		case sub.ch <- e:
			delivered++
		default:
		}
	}
	return delivered
}

// HasSubscribers reports whether at least one subscriber is registered.
func (b *Broadcaster) HasSubscribers() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs) > 0
}

// Close closes every subscription and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
	sub.once.Do(func() { close(sub.ch) })
}
