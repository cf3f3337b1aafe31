package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"duet-chat/internal/observability"
	"duet-chat/pkg/events"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	sendBufferSize = 256
)

// Client is one live connection. It is the handle the presence registry
// tracks; a user may own several.
type Client struct {
	gateway     *Gateway
	conn        Conn
	send        chan []byte
	userID      uuid.UUID
	clientID    string
	connectedAt time.Time
	log         *WebSocketLogger

	mu     sync.Mutex
	closed bool
}

func newClient(g *Gateway, conn Conn, userID uuid.UUID) *Client {
	return &Client{
		gateway:     g,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		userID:      userID,
		clientID:    uuid.NewString(),
		connectedAt: time.Now(),
		log:         g.log,
	}
}

// push queues a frame without blocking. It reports false when the client is
// closing or its queue is full; the frame is dropped for this client only.
func (c *Client) push(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn("client send buffer full", c.userID, c.clientID)
		return false
	}
}

// close ends the write loop, which sends a close frame and drops the conn.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("websocket read loop panic", c.userID, c.clientID, fmt.Errorf("%v", r))
		}
		c.gateway.OnDisconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket unexpected close", c.userID, c.clientID, err)
			}
			return
		}

		if err := c.handleMessage(message); err != nil {
			c.log.Warn("malformed frame, closing connection", c.userID, c.clientID, zap.Error(err))
			observability.IncWSEvent("inbound", "malformed")
			return
		}
	}
}

func (c *Client) handleMessage(message []byte) error {
	var msg events.Inbound
	if err := json.Unmarshal(message, &msg); err != nil {
		return err
	}

	switch msg.Type {
	case events.TypePing:
		frame, err := events.Encode(events.TypePong, nil)
		if err != nil {
			return err
		}
		c.push(frame)
		observability.IncWSEvent(events.TypePing, "answered")
	default:
		c.log.Warn("unknown message type", c.userID, c.clientID, zap.String("msg_type", msg.Type))
		observability.IncWSEvent("inbound", "ignored")
	}
	return nil
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
			// one event per frame; clients parse each frame as a single JSON value
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.gateway.OnDisconnect(c)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.gateway.OnDisconnect(c)
				return
			}
		}
	}
}
