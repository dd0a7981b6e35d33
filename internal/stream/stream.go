// Package stream carries committed ledger transactions to their consumers.
// The outbox relay publishes through a Publisher: the in-process Bus for a
// single instance, or Kafka when brokers are configured.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Message is one record on a topic. Key orders messages per user.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// Publisher delivers messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// Handler consumes one message. It must be idempotent: delivery is at least once.
type Handler func(ctx context.Context, msg Message) error

// Bus is an in-process Publisher that hands every message synchronously to
// the handlers subscribed to its topic.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus returns a bus without subscribers.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers h for topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish runs every handler for each message and joins their errors.
// A failing handler does not stop the others.
func (b *Bus) Publish(ctx context.Context, msgs ...Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var errs []error
	for _, msg := range msgs {
		for _, h := range b.handlers[msg.Topic] {
			if err := h(ctx, msg); err != nil {
				errs = append(errs, fmt.Errorf("topic %s: %w", msg.Topic, err))
			}
		}
	}
	return errors.Join(errs...)
}
