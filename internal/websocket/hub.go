package websocket

import (
	"encoding/json"
	"log/slog"

	"go-calc-api/internal/event"
)

// Hub fans calculation events out to connected dashboard clients. Events for
// a user are delivered only to that user's connections.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	bus event.Bus
}

func NewHub(bus event.Bus) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		bus:        bus,
	}
}

func (h *Hub) Run() {
	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case e := <-events:
			message, err := json.Marshal(e)
			if err != nil {
				slog.Error("failed to marshal event", "error", err)
				continue
			}
			for client := range h.clients {
				if e.ActorID != "" && client.userID != e.ActorID {
					continue
				}
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		case <-h.done:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		}
	}
}

func (h *Hub) Stop() {
	close(h.done)
}
