// Package events is the in-process publish/subscribe register that
// decouples mention ingestion from its consumers.
package events

import "sync"

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id uint64
	fn Handler
}

// Bus delivers events synchronously, in subscription order, on the
// publisher's goroutine.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[Name][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Name][]subscription)}
}

// Subscribe registers fn for name and returns a function that removes it.
// The returned function is safe to call more than once.
func (b *Bus) Subscribe(name Name, fn Handler) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[name] = append(b.subs[name], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { b.remove(name, id) }) }
}

func (b *Bus) remove(name Name, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.subs[name]
	kept := make([]subscription, 0, len(cur))
	for _, s := range cur {
		if s.id != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, name)
		return
	}
	b.subs[name] = kept
}

// Publish calls every handler subscribed to e's name. Handlers run on a
// snapshot, so they may subscribe or unsubscribe while being called.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := b.subs[e.EventName()]
	b.mu.RUnlock()
	for _, s := range subs {
		s.fn(e)
	}
}

// Clear drops every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = make(map[Name][]subscription)
	b.mu.Unlock()
}

// Count returns the number of handlers for name.
func (b *Bus) Count(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// On subscribes a typed handler under E's default event name.
func On[E Event](b *Bus, fn func(E)) func() {
	var zero E
	return OnName(b, zero.EventName(), fn)
}

// OnName subscribes a typed handler under an explicit name, for events such
// as TweetError that are published under several names.
func OnName[E Event](b *Bus, name Name, fn func(E)) func() {
	return b.Subscribe(name, func(e Event) {
		if ev, ok := e.(E); ok {
			fn(ev)
		}
	})
}
