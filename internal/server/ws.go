// Package server provides the HTTP and WebSocket surface of the kathak
// daemon. The renderer drives the launcher through it.
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/kathak/internal/app"
	"github.com/ayusman/kathak/internal/logx"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// writeTimeout bounds how long one slow renderer can hold up the push path.
const writeTimeout = 5 * time.Second

// EventsHub broadcasts app events (view updates, corpus changes,
// notifications) to every connected renderer via WebSocket.
type EventsHub struct {
	app     *app.App
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

// NewEventsHub creates a hub subscribed to the app's event stream.
func NewEventsHub(a *app.App) *EventsHub {
	h := &EventsHub{
		app:     a,
		clients: make(map[*websocket.Conn]bool),
	}
	a.OnEvent(h.broadcast)
	return h
}

// ServeHTTP handles WebSocket upgrade requests. Each new connection first
// receives the current view snapshot, then live events as they happen.
func (h *EventsHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.Log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	v := h.app.View()
	snapshot, _ := json.Marshal(app.Event{Type: app.EventView, View: &v})

	h.mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, snapshot)
	if err == nil {
		h.clients[conn] = true
	}
	h.mu.Unlock()
	if err != nil {
		return
	}

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcast pushes one event to all connected clients. Writes are
// serialized under the lock; a connection that cannot be written to within
// the deadline is dropped.
func (h *EventsHub) broadcast(ev app.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}
