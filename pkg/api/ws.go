package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"trust-pool/pkg/scheduler"
)

// subscriber pairs a connection with its send queue. A single writer
// goroutine drains the queue, so the connection only ever sees one writer
// regardless of how many executions publish at once.
type subscriber struct {
	conn *websocket.Conn
	send chan scheduler.Event
}

// Hub fans scheduler events (check results, trust transitions) out to
// websocket subscribers: UIs and node agents watching their own verdict.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: map[*subscriber]struct{}{},
	}
}

// HandleSubscribe upgrades the connection and streams events until the
// client goes away.
func (h *Hub) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	s := &subscriber{conn: c, send: make(chan scheduler.Event, 64)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	log.Printf("event subscriber connected (%d total)", h.count())
	go h.writeLoop(s)
	go h.readLoop(s)
}

// Publish queues an event for every subscriber. A subscriber whose queue is
// full is dropped rather than allowed to stall the scheduling loop. Queueing
// happens under the read lock so a send never races the channel close in drop.
func (h *Hub) Publish(e scheduler.Event) {
	var full []*subscriber
	h.mu.RLock()
	for s := range h.subs {
		select {
		case s.send <- e:
		default:
			full = append(full, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range full {
		h.drop(s)
	}
}

// writeLoop is the sole writer for its connection.
func (h *Hub) writeLoop(s *subscriber) {
	for e := range s.send {
		if err := s.conn.WriteJSON(e); err != nil {
			h.drop(s)
			return
		}
	}
}

func (h *Hub) readLoop(s *subscriber) {
	defer h.drop(s)
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
	h.mu.Unlock()
	_ = s.conn.Close()
}

func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
