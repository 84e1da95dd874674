package events

import (
	"log"
	"sync"
)

// Handler is a callback invoked for each published event.
type Handler func(Event)

// Bus is a simple synchronous event bus. Publish invokes every
// type-specific handler, then every global handler, on the caller's
// goroutine. A handler failure is logged and does not stop fan-out.
//
// Publish is safe to call from any goroutine, but concurrent publishes
// are not serialized against each other; callers that need cross-thread
// ordering must serialize upstream. Slow consumers must off-load work
// themselves (see Bridge).
type Bus struct {
	mu      sync.RWMutex
	subs    map[EventType][]Handler
	allSubs []Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler invoked only for events of the given type.
func (b *Bus) Subscribe(typ EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[typ] = append(b.subs[typ], h)
}

// SubscribeAll registers a handler invoked for every event.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, h)
}

// Publish delivers the event to all matching handlers in registration
// order: type-specific first, then global.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	typed := b.subs[e.Type]
	global := b.allSubs
	b.mu.RUnlock()

	for _, h := range typed {
		b.invoke(h, e)
	}
	for _, h := range global {
		b.invoke(h, e)
	}
}

// invoke runs one handler, recovering a panic so the remaining handlers
// and the publisher keep going.
func (b *Bus) invoke(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[events] handler for %s panicked: %v", e.Type, r)
		}
	}()
	h(e)
}
