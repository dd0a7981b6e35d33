//go:build ignore

// publish_event.go is a helper that pushes one domain event onto the ledger's
// events topic.
// Usage: go run scripts/publish_event.go <type> '<json payload>'
//
// Example:
//
//	KAFKA_BROKERS=localhost:9092 go run scripts/publish_event.go \
//	    contribution_recorded '{"eventId":"c-1","userId":42,"weight":10}'
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/stream"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run scripts/publish_event.go <type> '<json payload>'")
		os.Exit(1)
	}

	brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
	if brokers[0] == "" {
		brokers = []string{"localhost:9092"}
	}
	topic := os.Getenv("KAFKA_EVENTS_TOPIC")
	if topic == "" {
		topic = "ledger.events"
	}

	payload := json.RawMessage(os.Args[2])
	if !json.Valid(payload) {
		fmt.Println("Payload is not valid JSON")
		os.Exit(1)
	}
	value, err := json.Marshal(ledger.Envelope{Type: os.Args[1], Payload: payload})
	if err != nil {
		fmt.Printf("Encoding error: %v\n", err)
		os.Exit(1)
	}

	producer, err := stream.NewKafkaProducer(brokers)
	if err != nil {
		fmt.Printf("Kafka error: %v\n", err)
		os.Exit(1)
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := producer.Publish(ctx, stream.Message{Topic: topic, Value: value}); err != nil {
		fmt.Printf("Publish failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Published %s to %s\n", os.Args[1], topic)
}
