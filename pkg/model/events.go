package model

import (
	"encoding/json"
	"time"
)

// Wire event names. Client-to-server events arrive wrapped in an Envelope;
// server-to-client events are sent the same way.
const (
	EventAuth            = "auth"
	EventPresenceUpdate  = "presence:update"
	EventDMSend          = "dm:send"
	EventDMMessage       = "dm:message"
	EventDMTyping        = "dm:typing"
	EventNotificationNew = "notification:new"
)

// Envelope is the framing for every websocket payload in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent wraps a payload in an Envelope and marshals the whole frame.
func EncodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// AuthPayload carries the external auth token. The field is named userId on the
// wire because that is what the identity provider's client SDK exposes.
type AuthPayload struct {
	UserID string `json:"userId"`
}

// SendPayload is the client request to deliver a direct message.
type SendPayload struct {
	RecipientUserID int64  `json:"recipientUserId"`
	Body            string `json:"body"`
	ImageURL        string `json:"imageUrl"`
}

// TypingPayload is the client-side typing indicator.
type TypingPayload struct {
	RecipientUserID int64 `json:"recipientUserId"`
	IsTyping        bool  `json:"isTyping"`
}

// TypingEvent is forwarded to the recipient's dm room only.
type TypingEvent struct {
	SenderUserID int64 `json:"senderUserId"`
	IsTyping     bool  `json:"isTyping"`
}

// PresenceUpdate is broadcast globally after every presence change.
type PresenceUpdate struct {
	OnlineUserIDs []int64 `json:"onlineUserIds"`
}

// NotificationEvent is consumed from the notifications topic. Payload is opaque
// to the relay and forwarded as-is to the target user's notification room.
type NotificationEvent struct {
	UserID  int64           `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// DirectMessage is the durably stored message entity. Exactly one of Body and
// ImageURL is non-empty; ID and CreatedAt are assigned by the store on append.
type DirectMessage struct {
	ID              int64     `json:"id"`
	SenderUserID    int64     `json:"senderUserId"`
	RecipientUserID int64     `json:"recipientUserId"`
	Body            string    `json:"body,omitempty"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
