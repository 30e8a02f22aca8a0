// Package events provides the orchestrator's broadcast channel: a single
// Bus that every emitter (orchestrator, agent loop, state engine) publishes
// typed Events to, and every listener (persistence, the SSE transport,
// tests) subscribes to. Listener panics are recovered per-subscriber-send
// so one broken consumer cannot take down another.
package events

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one listener's view of the bus.
type Subscriber struct {
	ch        chan Event
	types     map[EventType]bool // empty means all types
	projectID string             // empty means no project filter
	priority  bool
}

// Bus is a project-filtered, type-filtered pub/sub broadcaster.
// Regular subscribers use ring-buffer semantics (oldest event dropped
// under backpressure); priority subscribers block instead of dropping,
// for events the system can never silently lose (task_locked,
// project_failed, cooldown_entered).
type Bus struct {
	mu           sync.RWMutex
	subscribers  []*Subscriber
	prioritySubs []*Subscriber
	bufferSize   int
	dropped      int64
	closed       bool
}

// New creates a Bus with the given per-subscriber buffer size.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe returns a channel receiving events of the given types (all
// types if none given) across every project.
func (b *Bus) Subscribe(types ...EventType) <-chan Event {
	return b.SubscribeForProject("", types...)
}

// SubscribeForProject filters delivery to one project id; an empty id
// receives events from every project.
func (b *Bus) SubscribeForProject(projectID string, types ...EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	sub := &Subscriber{
		ch:        make(chan Event, b.bufferSize),
		types:     typeSet(types),
		projectID: projectID,
	}
	b.subscribers = append(b.subscribers, sub)
	return sub.ch
}

// SubscribePriority returns a blocking, never-dropping subscription.
func (b *Bus) SubscribePriority(projectID string, types ...EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	sub := &Subscriber{
		ch:        make(chan Event, 64),
		types:     typeSet(types),
		projectID: projectID,
		priority:  true,
	}
	b.prioritySubs = append(b.prioritySubs, sub)
	return sub.ch
}

func typeSet(types []EventType) map[EventType]bool {
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

// Unsubscribe removes and closes a subscription.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = removeSubscriber(b.subscribers, ch)
	b.prioritySubs = removeSubscriber(b.prioritySubs, ch)
}

func removeSubscriber(subs []*Subscriber, ch <-chan Event) []*Subscriber {
	out := make([]*Subscriber, 0, len(subs))
	for _, sub := range subs {
		if sub.ch == ch {
			close(sub.ch)
			continue
		}
		out = append(out, sub)
	}
	return out
}

// Publish delivers ev to every matching subscriber. Regular subscribers
// never block the emitter; priority subscribers do.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if !shouldDeliver(sub, ev) {
			continue
		}
		b.deliverRingBuffer(sub, ev)
	}
	for _, sub := range b.prioritySubs {
		if !shouldDeliver(sub, ev) {
			continue
		}
		sub.ch <- ev
	}
}

func shouldDeliver(sub *Subscriber, ev Event) bool {
	if sub.projectID != "" && ev.ProjectID() != sub.projectID {
		return false
	}
	if len(sub.types) > 0 && !sub.types[ev.Type()] {
		return false
	}
	return true
}

func (b *Bus) deliverRingBuffer(sub *Subscriber, ev Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}
	select {
	case <-sub.ch:
		atomic.AddInt64(&b.dropped, 1)
	default:
	}
	select {
	case sub.ch <- ev:
	default:
		atomic.AddInt64(&b.dropped, 1)
	}
}

// Dropped returns the total number of events dropped from ring-buffered
// subscriptions under backpressure.
func (b *Bus) Dropped() int64 {
	return atomic.LoadInt64(&b.dropped)
}

// Close closes the bus and every subscriber channel. Publish becomes a
// no-op after Close.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	for _, sub := range b.prioritySubs {
		close(sub.ch)
	}
	b.subscribers = nil
	b.prioritySubs = nil
}
