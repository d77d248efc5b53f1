package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/solrouter/swapflow/internal/order"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

var errClientGone = errors.New("ws client closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client adapts one gorilla connection to the Subscriber interface.
type Client struct {
	orderID uuid.UUID
	conn    *websocket.Conn
	hub     *Hub
	logger  *zap.Logger

	send      chan order.Event
	closeOnce sync.Once
	done      chan struct{}
}

// ServeWS upgrades the request and binds the connection as the order's
// subscriber. The connection stays open until the peer disconnects; events
// flow one way, server to client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, orderID uuid.UUID) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Client{
		orderID: orderID,
		conn:    conn,
		hub:     h,
		logger:  h.logger,
		send:    make(chan order.Event, sendBuffer),
		done:    make(chan struct{}),
	}
	h.Bind(orderID, c)
	go c.writePump()
	go c.readPump()
	return nil
}

// Send queues the event without blocking the pipeline. A full buffer counts
// as a dead client rather than backpressure on order progress.
func (c *Client) Send(evt order.Event) error {
	select {
	case <-c.done:
		return errClientGone
	case c.send <- evt:
		return nil
	default:
		return errClientGone
	}
}

// Close tears down the connection and unbinds from the hub.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump drains the connection so control frames are processed and
// disconnects are noticed. Inbound payloads are ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unbind(c.orderID, c)
		c.Close()
	}()
	c.conn.SetReadLimit(512)
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

// writePump serializes queued events to the socket and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case evt := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			payload, err := json.Marshal(evt)
			if err != nil {
				c.logger.Error("encoding event", zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
