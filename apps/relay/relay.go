package main

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/threadline/chat-relay/pkg/logger"
	"github.com/threadline/chat-relay/pkg/model"
	"github.com/threadline/chat-relay/pkg/telemetry"
)

// Client events are fire-and-forget: invalid input is dropped and counted,
// never acknowledged. The only client-visible failure signal is the absence
// of the expected event.

func (h *Hub) handleSend(c *Client, data json.RawMessage) {
	if c.state != stateActive {
		telemetry.EventsDropped.WithLabelValues("unauthenticated").Inc()
		return
	}

	var p model.SendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		telemetry.EventsDropped.WithLabelValues("malformed").Inc()
		return
	}
	if p.RecipientUserID <= 0 {
		telemetry.EventsDropped.WithLabelValues("bad_recipient").Inc()
		return
	}
	if p.RecipientUserID == c.userID {
		telemetry.EventsDropped.WithLabelValues("self_dm").Inc()
		return
	}
	if p.Body == "" && p.ImageURL == "" {
		telemetry.EventsDropped.WithLabelValues("empty").Inc()
		return
	}

	// Persist first. The stored message with its server-assigned id and
	// timestamp is the only thing ever delivered; nothing reaches a socket
	// without being durable.
	stored, err := h.store.Append(context.Background(), c.userID, p.RecipientUserID, p.Body, p.ImageURL)
	if err != nil {
		logger.Log.Error("message append failed",
			zap.Int64("senderId", c.userID), zap.Int64("recipientId", p.RecipientUserID), zap.Error(err))
		telemetry.EventsDropped.WithLabelValues("persistence").Inc()
		return
	}

	// Both parties' rooms: the sender's other tabs must see their own message.
	h.DeliverToUser(stored.SenderUserID, model.EventDMMessage, stored)
	h.DeliverToUser(stored.RecipientUserID, model.EventDMMessage, stored)
	telemetry.MessagesRelayed.Inc()
}

func (h *Hub) handleTyping(c *Client, data json.RawMessage) {
	if c.state != stateActive {
		telemetry.EventsDropped.WithLabelValues("unauthenticated").Inc()
		return
	}

	var p model.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		telemetry.EventsDropped.WithLabelValues("malformed").Inc()
		return
	}
	if p.RecipientUserID <= 0 {
		telemetry.EventsDropped.WithLabelValues("bad_recipient").Inc()
		return
	}

	// Recipient's room only; the sender needs no echo of their own typing.
	h.DeliverToUser(p.RecipientUserID, model.EventDMTyping, model.TypingEvent{
		SenderUserID: c.userID,
		IsTyping:     p.IsTyping,
	})
}
