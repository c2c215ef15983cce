package progress

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketBroadcaster fans progress events out to every connected
// websocket client, used by the Query HTTP API's live-progress endpoint.
// It is the Manager's observer itself when the websocket sink is selected
// and neither reads from nor publishes to Redis; the httpapi layer only
// registers upgraded connections with it.
type WebSocketBroadcaster struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewWebSocketBroadcaster creates an empty broadcaster.
func NewWebSocketBroadcaster() *WebSocketBroadcaster {
	return &WebSocketBroadcaster{clients: make(map[*websocket.Conn]struct{})}
}

// Register adds a newly upgraded connection to the broadcast set.
func (b *WebSocketBroadcaster) Register(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[conn] = struct{}{}
}

// Unregister removes a connection, called once its read loop exits.
func (b *WebSocketBroadcaster) Unregister(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, conn)
}

func (b *WebSocketBroadcaster) Item(_ context.Context, snap Snapshot) {
	b.broadcast(itemMessage(snap, 0))
}

func (b *WebSocketBroadcaster) Lifecycle(_ context.Context, event Lifecycle, snap Snapshot) {
	b.broadcast(lifecycleMessage(event, snap))
}

func (b *WebSocketBroadcaster) broadcast(msg progressMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

// Close closes every registered connection.
func (b *WebSocketBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		conn.Close()
		delete(b.clients, conn)
	}
	return nil
}
