package events

import "sync"

// Publisher is the capability components hold to emit events.
type Publisher interface {
	Publish(event Event)
}

// Bus is an in-process fan-out bus. Subscribers are registered explicitly,
// never discovered globally. Publish blocks until every subscriber returns,
// so subscribers that do slow work must dispatch to their own goroutines.
type Bus struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]func(Event), len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(event)
	}
}

// NopPublisher discards events. Used in tests and one-shot CLI runs that do
// not need observers.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
