package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reputation-ledger/internal/features/ledger"
	"serotonyl.ru/reputation-ledger/internal/features/scoring"
)

func TestBusDeliversToTopicSubscribers(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe("a", func(_ context.Context, m Message) error {
		got = append(got, "a1:"+string(m.Value))
		return nil
	})
	bus.Subscribe("a", func(_ context.Context, m Message) error {
		got = append(got, "a2:"+string(m.Value))
		return errors.New("a2 down")
	})
	bus.Subscribe("b", func(_ context.Context, m Message) error {
		got = append(got, "b:"+string(m.Value))
		return nil
	})

	err := bus.Publish(context.Background(), Message{Topic: "a", Value: []byte("x")})
	assert.ErrorContains(t, err, "a2 down")
	assert.Equal(t, []string{"a1:x", "a2:x"}, got)

	assert.NoError(t, bus.Publish(context.Background(), Message{Topic: "nobody", Value: []byte("y")}))
}

func seedLedger(t *testing.T, n int) *ledger.MemoryStore {
	t.Helper()
	store := ledger.NewMemoryStore()
	svc := ledger.NewService(store, scoring.DefaultPolicy(), ledger.Options{})
	ctx := context.Background()
	_, err := svc.RegisterUser(ctx, ledger.UserRegistered{UserID: 3})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := svc.RecordContribution(ctx, ledger.ContributionRecorded{UserID: 3, Weight: float64(i + 1)})
		require.NoError(t, err)
	}
	return store
}

func TestRelayPublishesAndMarks(t *testing.T) {
	store := seedLedger(t, 3)
	bus := NewBus()
	var amounts []float64
	bus.Subscribe("ledger.transactions", func(_ context.Context, m Message) error {
		var ev ledger.Committed
		require.NoError(t, json.Unmarshal(m.Value, &ev))
		assert.Equal(t, "3", string(m.Key))
		amounts = append(amounts, ev.Transaction.Amount)
		return nil
	})

	relay := NewRelay(store, bus, "ledger.transactions", 10, nil)
	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []float64{1, 2, 3}, amounts)

	n, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "published entries are not relayed twice")
}

type flakyPublisher struct {
	failAfter int
	calls     int
}

func (f *flakyPublisher) Publish(context.Context, ...Message) error {
	f.calls++
	if f.calls > f.failAfter {
		return errors.New("broker down")
	}
	return nil
}

func TestRelayStopsAtFirstFailure(t *testing.T) {
	store := seedLedger(t, 4)
	pub := &flakyPublisher{failAfter: 2}
	relay := NewRelay(store, pub, "ledger.transactions", 10, nil)

	n, err := relay.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, n)

	pending, err := store.PendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "failed and later entries stay pending")

	pub.failAfter = 100
	n, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
