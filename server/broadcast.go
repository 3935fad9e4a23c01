package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sseEvent is one event-stream frame waiting to be delivered.
type sseEvent struct {
	name    string
	payload string
}

// sseClient is one connected live-reload browser.
type sseClient struct {
	id     string
	events chan sseEvent
	done   chan struct{}
}

// broadcaster maintains the set of open push-channel connections for one
// instance and fans event-stream frames out to all of them. A failure on one
// client removes only that client; delivery to the rest continues.
type broadcaster struct {
	mu      sync.Mutex
	clients map[string]*sseClient
	closed  bool
	logf    func(format string, args ...any)
}

func newBroadcaster(logf func(format string, args ...any)) *broadcaster {
	return &broadcaster{
		clients: make(map[string]*sseClient),
		logf:    logf,
	}
}

// register adds a new client. Returns nil if the broadcaster is closed.
func (b *broadcaster) register() *sseClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	client := &sseClient{
		id:     uuid.NewString(),
		events: make(chan sseEvent, 16),
		done:   make(chan struct{}),
	}
	b.clients[client.id] = client
	b.logf("client %s connected (%d open)", client.id[:8], len(b.clients))
	return client
}

// unregister removes a client. Safe to call more than once.
func (b *broadcaster) unregister(client *sseClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client.id]; ok {
		delete(b.clients, client.id)
		b.logf("client %s disconnected (%d open)", client.id[:8], len(b.clients))
	}
}

// broadcast queues one frame for every connected client. A client whose
// queue is full misses the frame rather than blocking the rest; the next
// change will reach it. Broadcasting on a closed broadcaster is a no-op.
func (b *broadcaster) broadcast(name, payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	ev := sseEvent{name: name, payload: payload}
	for _, client := range b.clients {
		select {
		case client.events <- ev:
		default:
			b.logf("client %s event queue full, dropping %s", client.id[:8], name)
		}
	}
}

// clientCount returns the number of open push-channel connections.
func (b *broadcaster) clientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// closeAll disconnects every client and marks the broadcaster closed.
// Subsequent broadcasts are no-ops. Idempotent.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, client := range b.clients {
		close(client.done)
		delete(b.clients, id)
	}
}

// ServeHTTP upgrades a request into a push channel. The connection stays
// open until the peer disconnects, a write fails, or the instance stops -
// it is the one response exempt from the close-after-response rule.
func (b *broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	client := b.register()
	if client == nil {
		http.Error(w, "server stopping", http.StatusServiceUnavailable)
		return
	}
	defer b.unregister(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	// Opening handshake: ask the client to retry after 1s if we go away
	if _, err := fmt.Fprint(w, "retry: 1000\n\n"); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case ev := <-client.events:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.payload); err != nil {
				return
			}
			flusher.Flush()
		case <-client.done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// reloadPayload is the JSON body carried by reload and refreshcss frames.
type reloadPayload struct {
	At   int64  `json:"at"`
	Path string `json:"path"`
}

// encodeReloadPayload builds the payload for a change at the current time.
func encodeReloadPayload(changedPath string) string {
	data, err := json.Marshal(reloadPayload{
		At:   time.Now().UnixMilli(),
		Path: changedPath,
	})
	if err != nil {
		return `{"at":0,"path":""}`
	}
	return string(data)
}
