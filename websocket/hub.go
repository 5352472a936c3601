package websocket

import (
	"sync"

	"github.com/sugawarayuuta/sonnet"
)

// Hub fans a message out to a set of connections (spec.md Section 9's
// supplemented broadcast feature). It sits outside any single
// connection's Handshake/Open/Closed lifecycle: a Handler registers its
// *Conn with a Hub from Init and unregisters it from Terminate.
//
// SendText/SendBinary already enqueue onto each target connection's own
// mailbox and return immediately, so unlike the connection actor's read
// loop there is nothing here that can block on a slow peer — a
// broadcast to a stalled client just grows that client's queue.
type Hub struct {
	clients map[*Conn]bool

	register   chan *Conn
	unregister chan *Conn
	broadcast  chan hubBroadcast

	done   chan struct{}
	closed bool
	wg     sync.WaitGroup

	mu sync.RWMutex
}

type hubBroadcast struct {
	binary bool
	data   []byte
}

// NewHub creates a Hub. Call Run in its own goroutine before using it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Conn]bool),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		broadcast:  make(chan hubBroadcast, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's event loop. It blocks until Close is called.
func (h *Hub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				var err error
				if msg.binary {
					err = client.SendBinary(msg.data)
				} else {
					err = client.SendText(msg.data)
				}
				if err != nil {
					go h.Unregister(client)
				}
			}
			h.mu.RUnlock()

		case <-h.done:
			return
		}
	}
}

// Register adds client to the broadcast set. Thread-safe.
func (h *Hub) Register(client *Conn) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()
	h.register <- client
}

// Unregister removes client from the broadcast set. Safe to call
// multiple times for the same client.
func (h *Hub) Unregister(client *Conn) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()
	h.unregister <- client
}

// Broadcast queues a binary message for delivery to every registered
// client. It returns once the message is on the hub's 256-entry
// broadcast channel, and blocks while that channel is full.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()
	h.broadcast <- hubBroadcast{binary: true, data: message}
}

// BroadcastText queues a text message for delivery to every registered
// client.
func (h *Hub) BroadcastText(text string) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()
	h.broadcast <- hubBroadcast{data: []byte(text)}
}

// BroadcastJSON marshals v and queues it as a text message for delivery
// to every registered client.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return err
	}
	h.BroadcastText(string(data))
	return nil
}

// ClientCount returns the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the Hub's event loop and closes every registered
// connection. Safe to call multiple times.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	close(h.done)
	h.wg.Wait()

	h.mu.Lock()
	for client := range h.clients {
		_ = client.Close()
	}
	h.clients = make(map[*Conn]bool)
	h.mu.Unlock()

	return nil
}
