// Package anchor publishes transaction hashes to an external chain and
// marks the transactions confirmed. Anchoring is advisory: failures leave
// transactions pending for the next tick and never touch scores.
package anchor

import (
	"context"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"

	"serotonyl.ru/reputation-ledger/internal/common"
	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/metrics"
)

// Ledger is the pending-transaction view of the ledger store.
type Ledger interface {
	PendingTransactions(ctx context.Context, after time.Time, afterID uuid.UUID, limit int) ([]*ledger.Transaction, error)
	ConfirmTransaction(ctx context.Context, id uuid.UUID, txHash string, at time.Time) (bool, error)
}

// Publisher writes a transaction digest to the chain and returns the chain
// transaction hash. Publishing the same digest twice must be harmless.
type Publisher interface {
	Publish(ctx context.Context, txID uuid.UUID, digest string) (string, error)
}

// Digest is the keccak-256 of the transaction's immutable fields.
func Digest(tx *ledger.Transaction) string {
	h := sha3.NewLegacyKeccak256()
	for _, part := range []string{
		tx.ID.String(),
		strconv.FormatInt(tx.UserID, 10),
		string(tx.Type),
		string(tx.Category),
		strconv.FormatFloat(tx.Amount, 'f', -1, 64),
		tx.Reason,
		tx.Ref,
		tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Worker walks the pending transactions in batches. Each tick resumes after
// the last transaction it scanned and wraps to the oldest once the tail is
// reached, so transactions that keep failing cannot hold back newer ones.
type Worker struct {
	ledger    Ledger
	publisher Publisher
	batch     int
	metrics   *metrics.Metrics
	now       func() time.Time

	mu      sync.Mutex
	afterAt time.Time
	afterID uuid.UUID
}

func NewWorker(l Ledger, p Publisher, batch int, m *metrics.Metrics) *Worker {
	if batch <= 0 {
		batch = 50
	}
	return &Worker{ledger: l, publisher: p, batch: batch, metrics: m, now: common.NowUTC}
}

// RunOnce anchors the next batch of pending transactions and returns how
// many were confirmed. Only a failed scan is an error.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pending, err := w.ledger.PendingTransactions(ctx, w.afterAt, w.afterID, w.batch)
	if err != nil {
		return 0, err
	}
	if len(pending) < w.batch {
		w.afterAt, w.afterID = time.Time{}, uuid.Nil
	} else {
		last := pending[len(pending)-1]
		w.afterAt, w.afterID = last.CreatedAt, last.ID
	}

	confirmed := 0
	for _, tx := range pending {
		if ctx.Err() != nil {
			break
		}
		txHash, err := w.publisher.Publish(ctx, tx.ID, Digest(tx))
		if err != nil {
			w.metrics.IncAnchor("failed")
			log.WithError(err).WithField("tx_id", tx.ID).Warn("[ANCHOR] Publish failed, will retry")
			continue
		}
		ok, err := w.ledger.ConfirmTransaction(ctx, tx.ID, txHash, w.now())
		if err != nil {
			w.metrics.IncAnchor("failed")
			log.WithError(err).WithField("tx_id", tx.ID).Warn("[ANCHOR] Confirm failed, will retry")
			continue
		}
		if ok {
			confirmed++
			w.metrics.IncAnchor("confirmed")
		}
	}

	if confirmed > 0 {
		log.WithField("count", confirmed).Debug("[ANCHOR] Transactions confirmed")
	}
	return confirmed, nil
}
