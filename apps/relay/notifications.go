package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/threadline/chat-relay/pkg/logger"
	"github.com/threadline/chat-relay/pkg/model"
	"github.com/threadline/chat-relay/pkg/telemetry"
)

// NotificationConsumer reads events the external notification service
// publishes and forwards each to the target user's notification room. The
// payload is opaque to the relay.
type NotificationConsumer struct {
	reader *kafka.Reader
	hub    *Hub
}

func NewNotificationConsumer(brokers []string, topic, groupID string, hub *Hub) *NotificationConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &NotificationConsumer{reader: r, hub: hub}
}

// Run consumes until the context is canceled. Transient broker errors are
// retried; losing a notification only costs a realtime hint, the durable
// record lives with the notification service.
func (c *NotificationConsumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Log.Warn("read notification failed, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var event model.NotificationEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			logger.Log.Warn("unmarshal notification failed", zap.Error(err))
			continue
		}
		if event.UserID <= 0 {
			logger.Log.Warn("notification without target user", zap.ByteString("value", m.Value))
			continue
		}

		c.hub.DeliverNotification(event.UserID, event.Payload)
		telemetry.NotificationsForwarded.Inc()
	}
}

func (c *NotificationConsumer) Close() error {
	return c.reader.Close()
}
