package store

import (
	"context"
	"fmt"
	"time"

	"github.com/threadline/chat-relay/pkg/db"
	"github.com/threadline/chat-relay/pkg/model"
	"github.com/threadline/chat-relay/pkg/snowflake"
)

// Messages is the durable direct-message store. It is the sole owner of
// message state; ids and timestamps are assigned here, never by clients.
type Messages struct {
	session *db.Session
	ids     *snowflake.Generator
}

func NewMessages(session *db.Session, ids *snowflake.Generator) *Messages {
	return &Messages{session: session, ids: ids}
}

// conversationKey is the partition key shared by both directions of a
// conversation. Order-independent so A->B and B->A land in the same partition.
func conversationKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// Append durably persists a message and returns it with its server-assigned
// id and timestamp.
func (s *Messages) Append(ctx context.Context, senderID, recipientID int64, body, imageURL string) (model.DirectMessage, error) {
	msg := model.DirectMessage{
		ID:              s.ids.NextID(),
		SenderUserID:    senderID,
		RecipientUserID: recipientID,
		Body:            body,
		ImageURL:        imageURL,
		CreatedAt:       time.Now().UTC(),
	}

	const q = `INSERT INTO dm_messages (conversation_key, id, sender_id, recipient_id, body, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if err := s.session.Query(q,
		conversationKey(senderID, recipientID),
		msg.ID, msg.SenderUserID, msg.RecipientUserID, msg.Body, msg.ImageURL, msg.CreatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return model.DirectMessage{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// ListConversation returns up to limit messages between two users, newest
// first (the clustering order of the table).
func (s *Messages) ListConversation(ctx context.Context, userA, userB int64, limit int) ([]model.DirectMessage, error) {
	const q = `SELECT id, sender_id, recipient_id, body, image_url, created_at
		FROM dm_messages WHERE conversation_key = ? LIMIT ?`
	iter := s.session.Query(q, conversationKey(userA, userB), limit).WithContext(ctx).Iter()

	var messages []model.DirectMessage
	var m model.DirectMessage
	for iter.Scan(&m.ID, &m.SenderUserID, &m.RecipientUserID, &m.Body, &m.ImageURL, &m.CreatedAt) {
		messages = append(messages, m)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return messages, nil
}
