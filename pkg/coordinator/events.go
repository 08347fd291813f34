package coordinator

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TransferEvent is one coordinator transaction-state transition, broadcast to
// admin observers over /admin/events.
type TransferEvent struct {
	Type      string    `json:"type"` // "prepare", "commit", "committed", "abort"
	TxID      string    `json:"txid"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventBroadcaster fans out TransferEvents to every connected admin
// websocket client, broadcasting to all subscribers rather than filtering
// per topic.
type EventBroadcaster struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

// NewEventBroadcaster returns an empty broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{clients: make(map[*websocket.Conn]struct{})}
}

// Broadcast sends event to every currently connected client, dropping any
// connection that fails to keep up rather than blocking the caller.
func (b *EventBroadcaster) Broadcast(event TransferEvent) {
	b.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for c := range b.clients {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteJSON(event); err != nil {
			b.remove(c)
			c.Close()
		}
	}
}

func (b *EventBroadcaster) add(c *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
}

func (b *EventBroadcaster) remove(c *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, c)
}

// ServeWS upgrades the request to a websocket and registers it as an event
// subscriber until the client disconnects. Admin-only: the caller must gate
// this handler behind bearer-token auth before wiring it into the router.
func (b *EventBroadcaster) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("coordinator: admin event upgrade failed: %v", err)
		return
	}

	b.add(conn)
	defer func() {
		b.remove(conn)
		conn.Close()
	}()

	// Drain and discard anything the client sends; the only purpose of the
	// read loop is to notice disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
