package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/costume-orders/pkg/adapters/events/codec"
	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T, codecName string) (*StreamsEventBus, *redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	c, err := codec.New(codecName)
	require.NoError(t, err)

	bus := NewStreamsEventBus(client, c, "orders-consumers", "test-1", zap.NewNop())
	bus.block = 50 * time.Millisecond
	bus.claimIdle = 100 * time.Millisecond
	bus.claimInterval = 50 * time.Millisecond
	t.Cleanup(func() { _ = bus.Close() })
	return bus, client, mr
}

func testEvent(id string) domain.Event {
	return domain.NewOrderCreatedEvent("test", &domain.Order{
		ID:    id,
		Items: []domain.OrderItem{{ProductID: "hat-01", Quantity: 2}},
	})
}

func TestStreamsEventBus_PublishWritesEntry(t *testing.T) {
	bus, client, _ := newTestBus(t, codec.JSON)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, "order.events", testEvent("ord-1")))

	entries, err := client.XRange(ctx, "orders:events:order.events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "application/json", entries[0].Values[fieldContentType])
	assert.Contains(t, entries[0].Values[fieldData], `"productId":"hat-01"`)
}

func TestStreamsEventBus_SubscribeReceives(t *testing.T) {
	for _, name := range []string{codec.JSON, codec.MsgPack} {
		t.Run(name, func(t *testing.T) {
			bus, _, _ := newTestBus(t, name)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			got := make(chan domain.Event, 1)
			require.NoError(t, bus.Subscribe(ctx, "order.events", func(_ context.Context, ev domain.Event) error {
				got <- ev
				return nil
			}))

			require.NoError(t, bus.Publish(context.Background(), "order.events", testEvent("ord-2")))

			select {
			case ev := <-got:
				assert.Equal(t, "ord-2", ev.Detail.ID)
				assert.Equal(t, domain.EventTypeOrderCreated, ev.Type)
			case <-time.After(3 * time.Second):
				t.Fatal("event not delivered")
			}
		})
	}
}

func TestStreamsEventBus_PublishFailureIsDeliveryError(t *testing.T) {
	bus, _, mr := newTestBus(t, codec.JSON)
	mr.Close()

	err := bus.Publish(context.Background(), "order.events", testEvent("ord-3"))
	assert.ErrorIs(t, err, domain.ErrDelivery)
}

func TestStreamsEventBus_DecodeRejectsUnknownContentType(t *testing.T) {
	bus, _, _ := newTestBus(t, codec.JSON)

	_, err := bus.decode(redis.XMessage{ID: "1-0", Values: map[string]interface{}{
		fieldData:        "{}",
		fieldContentType: "text/plain",
	}})
	assert.Error(t, err)

	_, err = bus.decode(redis.XMessage{ID: "1-1", Values: map[string]interface{}{}})
	assert.Error(t, err)
}

func TestStreamsEventBus_FailedEntryIsRedelivered(t *testing.T) {
	bus, client, _ := newTestBus(t, codec.JSON)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	delivered := make(chan domain.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, "order.events", func(_ context.Context, ev domain.Event) error {
		if calls.Add(1) == 1 {
			return errors.New("downstream unavailable")
		}
		delivered <- ev
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "order.events", testEvent("ord-4")))

	select {
	case ev := <-delivered:
		assert.Equal(t, "ord-4", ev.Detail.ID)
	case <-time.After(3 * time.Second):
		t.Fatalf("event not redelivered, handler calls=%d", calls.Load())
	}
	assert.Equal(t, int32(2), calls.Load())

	assert.Eventually(t, func() bool {
		pending, err := client.XPending(context.Background(), "orders:events:order.events", "orders-consumers").Result()
		return err == nil && pending.Count == 0
	}, 2*time.Second, 20*time.Millisecond)
}
