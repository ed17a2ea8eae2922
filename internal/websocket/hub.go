package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"go-banking-client/internal/event"
)

// Hub fans session and auth events out to connected UI shells.
type Hub struct {
	// Registered clients. Only touched by Run.
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client

	bus      event.Bus
	upgrader websocket.Upgrader

	connected atomic.Int32
	done      chan struct{}
}

func NewHub(bus event.Bus, allowedOrigins []string) *Hub {
	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		bus:        bus,
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// Run broadcasts bus events until ctx is done. After Run returns no client
// can register.
func (h *Hub) Run(ctx context.Context) {
	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()
	defer close(h.done)
	defer h.dropAll()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			h.connected.Add(1)
		case client := <-h.unregister:
			h.drop(client)
		case e, ok := <-events:
			if !ok {
				return
			}
			if !pushed(e.Type) {
				continue
			}

			message, err := json.Marshal(e)
			if err != nil {
				slog.Error("failed to marshal event", "error", err)
				continue
			}

			// a logout concerns only the sockets opened under that sign-in
			target := ""
			if e.Type == event.TypeLoggedOut {
				target = sessionOf(e)
			}

			for client := range h.clients {
				if !client.belongsTo(target) {
					continue
				}
				select {
				case client.send <- message:
				default:
					slog.Warn("websocket client too slow, disconnecting")
					h.drop(client)
				}
			}

			// the credential those clients connected with is now dead
			if e.Type == event.TypeLoggedOut {
				for client := range h.clients {
					if client.belongsTo(target) {
						h.drop(client)
					}
				}
			}
		}
	}
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	return int(h.connected.Load())
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.connected.Add(-1)
}

func (h *Hub) dropAll() {
	for client := range h.clients {
		h.drop(client)
	}
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// sessionOf returns the sign-in a logout event ended, or "" when it does not
// say, in which case it applies to everyone.
func sessionOf(e event.Event) string {
	payload, ok := e.Payload.(map[string]any)
	if !ok {
		return ""
	}
	session, _ := payload["session"].(string)
	return session
}

func pushed(t event.Type) bool {
	s := string(t)
	return strings.HasPrefix(s, "session.") || strings.HasPrefix(s, "auth.")
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
