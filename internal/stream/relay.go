package stream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/metrics"
)

// Outbox is the part of the ledger store the relay drains.
type Outbox interface {
	PendingOutbox(ctx context.Context, limit int) ([]ledger.OutboxEntry, error)
	MarkOutboxPublished(ctx context.Context, ids []int64, at time.Time) error
}

// Relay moves committed-transaction events from the outbox to a Publisher.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	topic     string
	batch     int
	metrics   *metrics.Metrics
}

// NewRelay creates a relay publishing to topic in batches of batch entries.
func NewRelay(outbox Outbox, publisher Publisher, topic string, batch int, m *metrics.Metrics) *Relay {
	return &Relay{outbox: outbox, publisher: publisher, topic: topic, batch: batch, metrics: m}
}

// RunOnce publishes pending entries in commit order and stops at the first
// failure, so later entries never overtake an unpublished one. It returns
// the number of entries marked published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.PendingOutbox(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("read outbox: %w", err)
	}

	var (
		done   []int64
		pubErr error
	)
	for _, e := range entries {
		msg := Message{
			Topic: r.topic,
			Key:   []byte(strconv.FormatInt(e.UserID, 10)),
			Value: e.Payload,
		}
		if pubErr = r.publisher.Publish(ctx, msg); pubErr != nil {
			log.WithFields(log.Fields{
				"outbox_id": e.ID,
				"tx_id":     e.TransactionID,
			}).WithError(pubErr).Warn("[RELAY] Publish failed, will retry")
			break
		}
		done = append(done, e.ID)
	}

	if len(done) > 0 {
		if err := r.outbox.MarkOutboxPublished(ctx, done, time.Now().UTC()); err != nil {
			return 0, fmt.Errorf("mark outbox published: %w", err)
		}
		r.metrics.AddOutboxPublished(len(done))
	}
	return len(done), pubErr
}
