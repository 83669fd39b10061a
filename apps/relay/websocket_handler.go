package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/threadline/chat-relay/pkg/logger"
	"github.com/threadline/chat-relay/pkg/model"
	"github.com/threadline/chat-relay/pkg/telemetry"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

type connState int

const (
	stateConnecting connState = iota
	stateAuthenticating
	stateActive
	stateClosed
)

// Client is the middleman between one websocket connection and the hub. The
// state field and the identity fields are written only from the connection's
// own reader goroutine (and from unregister under the hub lock, after the
// reader has stopped touching them).
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	// Transport-assigned connection id.
	id string

	state       connState
	userID      int64
	displayName string
	handle      string
}

// forceDisconnect closes the transport immediately. Not a graceful
// negotiation: the client observes the disconnect, nothing else.
func (c *Client) forceDisconnect() {
	c.state = stateClosed
	if c.conn != nil {
		c.conn.Close()
	}
}

// readPump processes inbound frames in arrival order, one goroutine per
// connection. A failure on this connection never propagates to others.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Debug("read error", zap.String("connId", c.id), zap.Error(err))
			}
			break
		}
		if c.state == stateClosed {
			break
		}

		var env model.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			telemetry.EventsDropped.WithLabelValues("malformed").Inc()
			continue
		}

		switch env.Event {
		case model.EventAuth:
			c.hub.authenticate(c, env.Data)
		case model.EventDMSend:
			c.hub.handleSend(c, env.Data)
		case model.EventDMTyping:
			c.hub.handleTyping(c, env.Data)
		default:
			telemetry.EventsDropped.WithLabelValues("unknown_event").Inc()
		}
	}
}

// writePump pumps frames from the hub to the websocket connection and keeps
// the transport's ping/pong heartbeat going.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

// serveWs upgrades the request and starts the connection's pumps. The
// connection stays unauthenticated until its first frame carries the auth
// event; identity failures surface as a forced disconnect, never as an HTTP
// error after the upgrade.
func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, 256),
		id:    uuid.NewString(),
		state: stateConnecting,
	}
	hub.register(client)

	go client.writePump()
	go client.readPump()
}
