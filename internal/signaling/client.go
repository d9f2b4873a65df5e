package signaling

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	sendBufferSize = 64
)

// Client is one live websocket connection owned by one authenticated user.
// rooms is the set of call rooms the connection currently belongs to; it is
// guarded by the hub's mutex, never touched directly.
type Client struct {
	hub    *Hub
	relay  *Relay
	conn   *websocket.Conn
	userID string
	role   string
	send   chan []byte
	rooms  map[string]struct{}
}

func newClient(hub *Hub, relay *Relay, conn *websocket.Conn, userID, role string) *Client {
	return &Client{
		hub:    hub,
		relay:  relay,
		conn:   conn,
		userID: userID,
		role:   role,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[string]struct{}),
	}
}

// readPump drains inbound frames into the relay until the connection dies,
// then unregisters and runs the disconnect flow. One goroutine per client.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.relay.HandleDisconnect(context.Background(), c.userID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("websocket read", "user_id", c.userID, "error", err)
			}
			return
		}
		c.relay.Dispatch(context.Background(), c.userID, c.role, raw)
	}
}

// writePump serializes all writes to the connection and keeps it alive with
// pings. One goroutine per client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
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
