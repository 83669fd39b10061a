package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/threadline/chat-relay/pkg/auth"
	"github.com/threadline/chat-relay/pkg/logger"
	"github.com/threadline/chat-relay/pkg/model"
	"github.com/threadline/chat-relay/pkg/presence"
	"github.com/threadline/chat-relay/pkg/telemetry"
)

// MessageAppender is the slice of the message store the relay needs.
type MessageAppender interface {
	Append(ctx context.Context, senderID, recipientID int64, body, imageURL string) (model.DirectMessage, error)
}

// Deterministic room names. Rooms have no explicit lifetime: they exist while
// at least one connection is joined.
func notificationRoom(userID int64) string {
	return fmt.Sprintf("notifications:user:%d", userID)
}

func dmRoom(userID int64) string {
	return fmt.Sprintf("dm:user:%d", userID)
}

// Hub owns the connection set and the room membership index. Room maps and
// the client set share one lock; send channels are only closed while the
// write lock is held, so fan-out under the read lock never races a close.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	registry *presence.Registry
	resolver auth.Resolver
	store    MessageAppender
}

func NewHub(registry *presence.Registry, resolver auth.Resolver, store MessageAppender) *Hub {
	return &Hub{
		clients:  make(map[*Client]bool),
		rooms:    make(map[string]map[*Client]bool),
		registry: registry,
		resolver: resolver,
		store:    store,
	}
}

// register admits a freshly upgraded, still unauthenticated connection.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	telemetry.ConnectionsActive.Inc()
}

// authenticate drives the Connecting -> Authenticating -> Active transition.
// Any failure closes the connection; the registry is only touched once the
// connection reaches Active.
func (h *Hub) authenticate(c *Client, data json.RawMessage) {
	if c.state != stateConnecting {
		// A connection authenticates exactly once.
		telemetry.EventsDropped.WithLabelValues("reauth").Inc()
		return
	}
	c.state = stateAuthenticating

	var p model.AuthPayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" {
		logger.Log.Info("handshake missing auth token", zap.String("connId", c.id))
		c.forceDisconnect()
		return
	}

	identity, err := h.resolver.Resolve(context.Background(), p.UserID)
	if err != nil {
		logger.Log.Info("identity resolution failed", zap.String("connId", c.id), zap.Error(err))
		c.forceDisconnect()
		return
	}
	if identity.UserID <= 0 {
		logger.Log.Info("identity resolved invalid user id", zap.String("connId", c.id), zap.Int64("userId", identity.UserID))
		c.forceDisconnect()
		return
	}

	c.userID = identity.UserID
	c.displayName = identity.DisplayName
	c.handle = identity.Handle
	c.state = stateActive

	h.mu.Lock()
	h.join(c, notificationRoom(c.userID))
	h.join(c, dmRoom(c.userID))
	h.mu.Unlock()

	h.registry.Add(c.userID, c.id)
	h.BroadcastPresence()

	logger.Log.Info("connection active",
		zap.String("connId", c.id), zap.Int64("userId", c.userID), zap.String("handle", c.handle))
}

// unregister tears a connection down on transport close. A connection that
// never reached Active leaves no trace in the registry.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	wasActive := c.state == stateActive
	if wasActive {
		h.leave(c, notificationRoom(c.userID))
		h.leave(c, dmRoom(c.userID))
	}
	c.state = stateClosed
	close(c.send)
	h.mu.Unlock()

	telemetry.ConnectionsActive.Dec()

	if wasActive {
		h.registry.Remove(c.userID, c.id)
		h.BroadcastPresence()
		logger.Log.Info("connection closed", zap.String("connId", c.id), zap.Int64("userId", c.userID))
	}
}

// join and leave require h.mu to be held for writing.
func (h *Hub) join(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true
}

func (h *Hub) leave(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// deliverToRoom fans a frame out to every member of a room. Members with a
// full send buffer are skipped; the transport's own keep-alive reaps them.
func (h *Hub) deliverToRoom(room, event string, payload any) {
	frame, err := model.EncodeEvent(event, payload)
	if err != nil {
		logger.Log.Error("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
		default:
		}
	}
}

// DeliverToUser sends an event to every connection in a user's dm room. With
// zero connections the event is silently dropped; there is no offline queue.
func (h *Hub) DeliverToUser(userID int64, event string, payload any) {
	h.deliverToRoom(dmRoom(userID), event, payload)
}

// DeliverNotification forwards an opaque notification payload to a user's
// notification room.
func (h *Hub) DeliverNotification(userID int64, payload json.RawMessage) {
	h.deliverToRoom(notificationRoom(userID), model.EventNotificationNew, payload)
}

// BroadcastPresence emits the full online-user snapshot to every connected
// client. Runs synchronously after each registry mutation; presence is global
// information, not room-scoped.
func (h *Hub) BroadcastPresence() {
	frame, err := model.EncodeEvent(model.EventPresenceUpdate, model.PresenceUpdate{
		OnlineUserIDs: h.registry.OnlineUserIDs(),
	})
	if err != nil {
		logger.Log.Error("encode presence update failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
		}
	}
	h.mu.RUnlock()

	telemetry.PresenceBroadcasts.Inc()
}
