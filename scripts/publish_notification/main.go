package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"

	"github.com/segmentio/kafka-go"
)

// Publishes a test event to the notifications topic so a connected client
// receives notification:new through its notification room.
func main() {
	brokers := flag.String("brokers", "localhost:19092", "kafka broker address")
	topic := flag.String("topic", "notifications", "notifications topic")
	userID := flag.Int64("user", 0, "target local user id")
	payload := flag.String("payload", `{"kind":"test"}`, "opaque notification payload (JSON)")
	flag.Parse()

	if *userID <= 0 {
		log.Fatal("-user must be a positive local user id")
	}

	value, err := json.Marshal(map[string]any{
		"userId":  *userID,
		"payload": json.RawMessage(*payload),
	})
	if err != nil {
		log.Fatal(err)
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(*brokers),
		Topic:    *topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer w.Close()

	if err := w.WriteMessages(context.Background(), kafka.Message{Value: value}); err != nil {
		log.Fatal(err)
	}
	log.Printf("Notification published for user %d", *userID)
}
