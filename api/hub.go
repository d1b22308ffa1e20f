package api

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Listener is one connected real-time recipient of transcript frames.
// *websocket.Conn satisfies it; tests use fakes.
type Listener interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub tracks the active listener set. Membership changes on connect and
// disconnect; a failed delivery evicts that listener and never blocks the
// others.
type Hub struct {
	mu        sync.Mutex
	listeners map[Listener]struct{}
	log       *log.Logger

	// writeMu serializes delivery loops. Websocket connections tolerate at
	// most one concurrent writer, and broadcasts can be published from
	// independent flush goroutines at the same time.
	writeMu sync.Mutex
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		listeners: make(map[Listener]struct{}),
		log:       logger,
	}
}

func (h *Hub) Add(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[l] = struct{}{}
}

func (h *Hub) Remove(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, l)
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Broadcast delivers one text frame to every listener. Concurrent
// broadcasts are serialized so no connection ever sees two overlapping
// writes. Write failures are logged, the listener is dropped, and delivery
// continues; no retry.
func (h *Hub) Broadcast(messageType int, data []byte) {
	h.mu.Lock()
	listeners := make([]Listener, 0, len(h.listeners))
	for l := range h.listeners {
		listeners = append(listeners, l)
	}
	h.mu.Unlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	for _, l := range listeners {
		if err := l.WriteMessage(messageType, data); err != nil {
			h.log.Warn("dropping unreachable listener", "error", err)
			h.Remove(l)
			l.Close()
		}
	}
}
