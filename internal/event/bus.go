package event

import (
	"sync"
)

// Handler consumes events. Handlers run synchronously on the sender's
// goroutine and must not block.
type Handler func(e Event)

var (
	mu       sync.RWMutex
	handlers []Handler
)

// Subscribe registers a handler for all future events.
func Subscribe(h Handler) {
	mu.Lock()
	defer mu.Unlock()
	handlers = append(handlers, h)
}

// Send dispatches the event to every subscribed handler.
func Send(e Event) {
	mu.RLock()
	hs := make([]Handler, len(handlers))
	copy(hs, handlers)
	mu.RUnlock()

	for _, h := range hs {
		h(e)
	}
}

// Reset drops all handlers. Test helper.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	handlers = nil
}
