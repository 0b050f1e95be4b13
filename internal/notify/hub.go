// Package notify implements a Server-Sent Events hub that streams user
// notifications and session change signals to connected clients.
package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noteforest/noteforest/internal/session"
)

// Event is one SSE frame to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Notification is the payload of a "notification" event.
type Notification struct {
	Message  string           `json:"message"`
	Severity session.Severity `json:"severity"`
	Time     time.Time        `json:"time"`
}

// Hub manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable
// state (clients + session throttle timestamp). Public methods communicate
// with this loop through channels, so no mutexes are required.
type Hub struct {
	sessionMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	sessionCh     chan struct{}
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewHub creates an SSE hub. sessionThrottle caps how often the
// "session.updated" signal is emitted; content edits arrive per keystroke
// and clients only need a nudge to refetch, not every change.
func NewHub(sessionThrottle time.Duration) *Hub {
	if sessionThrottle <= 0 {
		sessionThrottle = time.Second
	}

	h := &Hub{
		sessionMin:    sessionThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		sessionCh:     make(chan struct{}, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)

	clients := make(map[chan []byte]struct{})
	var lastSession time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking the loop.
			}
		}
	}

	for {
		select {
		case <-h.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-h.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-h.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-h.publishCh:
			broadcast(event)

		case <-h.sessionCh:
			now := time.Now()
			if now.Sub(lastSession) >= h.sessionMin {
				lastSession = now
				broadcast(Event{Type: "session.updated", Data: map[string]string{}})
			}

		case resp := <-h.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops the hub loop and closes all client channels.
func (h *Hub) Close() {
	if h.closed.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
	<-h.stopped
}

// Subscribe adds a new client and returns its channel.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if h.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case h.subscribeCh <- ch:
	case <-h.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (h *Hub) Unsubscribe(ch chan []byte) {
	if h.closed.Load() {
		return
	}
	select {
	case h.unsubscribeCh <- ch:
	case <-h.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	if h.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case h.countReqCh <- resp:
	case <-h.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-h.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (h *Hub) Publish(event Event) {
	if h.closed.Load() {
		return
	}
	select {
	case h.publishCh <- event:
	case <-h.stopped:
	}
}

// Notify broadcasts a user-facing notification. Implements
// session.Notifier.
func (h *Hub) Notify(message string, severity session.Severity) {
	h.Publish(Event{Type: "notification", Data: Notification{
		Message:  message,
		Severity: severity,
		Time:     time.Now(),
	}})
}

// SessionChanged signals that session state changed; emission of the
// "session.updated" event is throttled.
func (h *Hub) SessionChanged() {
	if h.closed.Load() {
		return
	}
	select {
	case h.sessionCh <- struct{}{}:
	case <-h.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
