package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// a full countdown burst must fit without the client being dropped
	sendBuffer = 128
)

// Actions is what a connected UI shell may ask of the session.
type Actions interface {
	Activity(kind string) bool
	Continue() bool
	Logout()
}

type inbound struct {
	Type string `json:"type"`
	Kind string `json:"kind,omitempty"`
}

// Client is one websocket connection between the hub and a UI shell.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	actions Actions
	// session is the sign-in the connection was authenticated under
	session string
}

func (c *Client) belongsTo(session string) bool {
	return session == "" || c.session == session
}

// ServeWS upgrades the request and attaches the connection to the hub under
// session. The caller is responsible for authenticating the request first.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, session string, actions Actions) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), actions: actions, session: session}
	if !h.join(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read failed", "error", err)
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("ignoring malformed websocket message", "error", err)
		return
	}

	switch msg.Type {
	case "activity":
		if !c.actions.Activity(msg.Kind) {
			slog.Debug("ignoring activity signal", "kind", msg.Kind)
		}
	case "continue":
		c.actions.Continue()
	case "logout":
		c.actions.Logout()
	default:
		slog.Debug("unknown websocket message", "type", msg.Type)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
