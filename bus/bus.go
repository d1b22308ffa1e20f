package bus

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

// Handler processes one event. Handlers that receive a request event must
// settle its reply future on every exit path.
type Handler func(ctx context.Context, ev Event)

// Bus is an in-memory publish/subscribe broker. Subscriptions are expected
// to happen during service startup, before the first publish, but the
// registry is locked anyway so late registration is merely unwise, not racy.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	log      *log.Logger
}

func New(logger *log.Logger) *Bus {
	return &Bus{
		handlers: make(map[Type][]Handler),
		log:      logger,
	}
}

// Subscribe registers a handler for events of type t. Multiple handlers per
// type are allowed; for request events the convention is exactly one.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish invokes every handler registered for the event's type concurrently
// and returns once all of them have finished. No handlers is a no-op, not an
// error. A panicking handler is recovered and logged; it never takes down
// the publisher or the other handlers of the same publish.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	handlers := b.handlers[ev.Type()]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(handlers))
	for _, h := range handlers {
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.log.Error(
						"event handler panicked",
						"type", ev.Type(),
						"panic", r,
					)
				}
			}()
			h(ctx, ev)
		}(h)
	}
	wg.Wait()
}

// HandlerCount reports how many handlers are registered for t.
func (b *Bus) HandlerCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}
