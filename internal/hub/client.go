package hub

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Project payloads ride in
	// sync_project frames, so this is generous.
	maxMessageSize = 1 << 20
)

// Client is one WebSocket connection known to the hub. Its connection
// id doubles as the member identity inside rooms.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	send chan []byte
}

// NewClient wraps an upgraded connection. The id is minted here and
// stays with the connection for its lifetime; a reconnect gets a new
// one.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   uuid.NewString(),
		send: make(chan []byte, 256),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// CloseConn closes the underlying connection.
func (c *Client) CloseConn() { c.conn.Close() }

// enqueue places a frame on the client's send queue without blocking.
// A full queue means the peer is slow or gone; the frame is dropped
// (best-effort delivery) and the write pump deals with the connection.
func (c *Client) enqueue(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// readPump pumps inbound frames from the connection to the hub. It
// runs in its own goroutine; on exit it asks the hub to unregister the
// client, which is how transport disconnects become implicit leaves.
func (c *Client) readPump() {
	defer func() {
		c.hub.queue(hubMessage{kind: kindUnregister, client: c})
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	logCtx := logrus.WithField("conn_id", c.id)
	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			logCtx.WithError(err).Warn("Dropping malformed frame")
			continue
		}
		if !c.hub.queue(hubMessage{kind: kindEvent, client: c, env: env}) {
			logCtx.WithField("event", env.Event).Warn("Hub queue full, dropping frame")
		}
	}
}

// writePump pumps frames from the send queue to the connection and
// keeps the connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the queue during unregister.
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
