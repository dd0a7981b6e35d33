package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"

	"serotonyl.ru/reputation-ledger/internal/common"
)

// KafkaProducer publishes messages with franz-go, waiting for all in-sync
// replicas to acknowledge.
type KafkaProducer struct {
	client *kgo.Client
}

// NewKafkaProducer connects a producer to brokers.
func NewKafkaProducer(brokers []string) (*KafkaProducer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaProducer{client: client}, nil
}

func (p *KafkaProducer) Publish(ctx context.Context, msgs ...Message) error {
	records := make([]*kgo.Record, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, &kgo.Record{Topic: m.Topic, Key: m.Key, Value: m.Value})
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Close() {
	p.client.Close()
}

// KafkaConsumer feeds records of a consumer group into a Handler and commits
// offsets only after the handler accepted the whole poll.
type KafkaConsumer struct {
	client  *kgo.Client
	handler Handler
	backoff time.Duration
}

// NewKafkaConsumer joins group and subscribes to topics.
func NewKafkaConsumer(brokers []string, group string, topics []string, handler Handler) (*KafkaConsumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &KafkaConsumer{client: client, handler: handler, backoff: time.Second}, nil
}

// Run polls until ctx is cancelled. Records rejected as invalid are logged
// and skipped; store outages are retried until they succeed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			log.WithFields(log.Fields{
				"topic":     topic,
				"partition": partition,
			}).WithError(err).Warn("[KAFKA] Fetch error")
		})

		fetches.EachRecord(func(r *kgo.Record) {
			c.deliver(ctx, Message{Topic: r.Topic, Key: r.Key, Value: r.Value})
		})
		if ctx.Err() != nil {
			return nil
		}
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			log.WithError(err).Warn("[KAFKA] Offset commit failed")
		}
	}
}

func (c *KafkaConsumer) deliver(ctx context.Context, msg Message) {
	for {
		err := c.handler(ctx, msg)
		if err == nil {
			return
		}
		if !errors.Is(err, common.ErrUnavailable) {
			log.WithFields(log.Fields{
				"topic": msg.Topic,
				"key":   string(msg.Key),
			}).WithError(err).Error("[KAFKA] Dropping record")
			return
		}
		log.WithError(err).Warn("[KAFKA] Store unavailable, retrying record")
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff):
		}
	}
}
