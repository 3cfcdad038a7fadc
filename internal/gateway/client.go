package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/chorus/internal/bus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one connected WebSocket subscriber. Events fan out through a
// buffered send channel; a slow client drops events rather than blocking
// the broadcaster.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan bus.Event

	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan bus.Event, 64),
		closed: make(chan struct{}),
	}
}

// SendEvent queues an event for delivery. Non-blocking.
func (c *Client) SendEvent(event bus.Event) {
	select {
	case c.send <- event:
	case <-c.closed:
	default:
		slog.Debug("client send buffer full, dropping event", "id", c.id, "event", event.Name)
	}
}

// Run pumps events to the connection until it drops or ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	go c.readPump()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// readPump discards inbound frames (the stream is one-way) and handles
// pings/close.
func (c *Client) readPump() {
	defer c.Close()
	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}
