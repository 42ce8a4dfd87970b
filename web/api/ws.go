package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/observer"
)

// Hub fans observer snapshots out to websocket clients.
type Hub struct {
	clients    map[chan observer.Snapshot]bool
	broadcast  chan observer.Snapshot
	register   chan chan observer.Snapshot
	unregister chan chan observer.Snapshot
	mu         sync.RWMutex
}

// NewHub creates a new snapshot hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[chan observer.Snapshot]bool),
		broadcast:  make(chan observer.Snapshot),
		register:   make(chan chan observer.Snapshot),
		unregister: make(chan chan observer.Snapshot),
	}
}

// Run starts the hub until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()

		case snap := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client <- snap:
				default:
					// Slow clients miss snapshots rather than stall the hub.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a snapshot to all clients
func (h *Hub) Broadcast(snap observer.Snapshot) {
	h.broadcast <- snap
}

var upgrader = websocket.Upgrader{
	// Status is read-only; any origin may subscribe.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client := make(chan observer.Snapshot, 4)
		s.hub.register <- client
		defer func() { s.hub.unregister <- client }()

		// Drain reads so close frames are processed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if s.observer != nil {
			if err := conn.WriteJSON(s.observer.Latest()); err != nil {
				return
			}
		}
		for {
			select {
			case <-r.Context().Done():
				return
			case snap, ok := <-client:
				if !ok {
					return
				}
				if err := conn.WriteJSON(snap); err != nil {
					return
				}
			}
		}
	}
}
