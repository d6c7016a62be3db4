package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/costume-orders/pkg/adapters/events/memory"
	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type consumedRecord struct {
	eventType string
	status    string
}

type recordingMetrics struct {
	mu       sync.Mutex
	consumed []consumedRecord
	pool     [3]int
}

func (m *recordingMetrics) RecordWorkflow(string, domain.Stage, domain.ErrorKind, time.Duration) {}
func (m *recordingMetrics) RecordPersistAttempts(string, int)                                    {}
func (m *recordingMetrics) RecordPublish(string)                                                 {}

func (m *recordingMetrics) RecordEventConsumed(eventType, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumed = append(m.consumed, consumedRecord{eventType, status})
}

func (m *recordingMetrics) RecordWorkerPoolStatus(idle, busy, stopped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool = [3]int{idle, busy, stopped}
}

func (m *recordingMetrics) Consumed() []consumedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]consumedRecord(nil), m.consumed...)
}

type chanNotifier struct {
	events chan domain.Event
	err    error
}

func (n *chanNotifier) Notify(_ context.Context, event domain.Event) error {
	if n.err != nil {
		return n.err
	}
	n.events <- event
	return nil
}

func startPool(t *testing.T, size int, notifiers ...Notifier) (*Pool, *memory.InMemoryEventBus, *recordingMetrics) {
	t.Helper()

	bus := memory.NewInMemoryEventBus()
	metrics := &recordingMetrics{}
	pool := NewPool(size, bus, "order.events", notifiers, metrics, zap.NewNop(), time.Hour)
	require.NoError(t, pool.Start())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
		_ = bus.Close()
	})
	return pool, bus, metrics
}

func orderCreated(id string) domain.Event {
	return domain.NewOrderCreatedEvent("test", &domain.Order{
		ID:    id,
		Items: []domain.OrderItem{{ProductID: "hat-01", Quantity: 2}},
	})
}

func TestPool_DeliversEachEventOnce(t *testing.T) {
	notifier := &chanNotifier{events: make(chan domain.Event, 10)}
	_, bus, metrics := startPool(t, 3, notifier)

	for _, id := range []string{"ord-1", "ord-2", "ord-3"} {
		require.NoError(t, bus.Publish(context.Background(), "order.events", orderCreated(id)))
	}

	seen := make(map[string]int)
	for i := 0; i < 3; i++ {
		select {
		case ev := <-notifier.events:
			seen[ev.Detail.ID]++
		case <-time.After(time.Second):
			t.Fatal("notification not delivered")
		}
	}
	assert.Equal(t, map[string]int{"ord-1": 1, "ord-2": 1, "ord-3": 1}, seen)

	assert.Eventually(t, func() bool { return len(metrics.Consumed()) == 3 }, time.Second, 5*time.Millisecond)
	for _, rec := range metrics.Consumed() {
		assert.Equal(t, consumedRecord{"OrderCreated", "processed"}, rec)
	}
}

func TestPool_DiscardsInvalidEvents(t *testing.T) {
	notifier := &chanNotifier{events: make(chan domain.Event, 1)}
	_, bus, metrics := startPool(t, 1, notifier)

	ev := orderCreated("ord-1")
	ev.SchemaVersion = 7
	require.NoError(t, bus.Publish(context.Background(), "order.events", ev))

	assert.Eventually(t, func() bool { return len(metrics.Consumed()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "invalid", metrics.Consumed()[0].status)
	assert.Empty(t, notifier.events)
}

func TestPool_DispatchReturnsNotifierError(t *testing.T) {
	boom := errors.New("socket closed")
	pool, _, metrics := startPool(t, 1, &chanNotifier{err: boom})

	err := pool.dispatch(context.Background(), orderCreated("ord-1"))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []consumedRecord{{"OrderCreated", "failed"}}, metrics.Consumed())
}

func TestPool_HealthReflectsWorkers(t *testing.T) {
	pool, _, _ := startPool(t, 2)

	status := pool.Health().GetStatus()
	assert.Equal(t, 2, status.TotalWorkers)
	assert.Equal(t, 2, status.IdleWorkers)
	assert.True(t, status.Healthy)
}

func TestPool_ShutdownStopsWorkers(t *testing.T) {
	bus := memory.NewInMemoryEventBus()
	defer bus.Close()
	metrics := &recordingMetrics{}
	pool := NewPool(2, bus, "order.events", nil, metrics, zap.NewNop(), time.Hour)
	require.NoError(t, pool.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	status := pool.Health().GetStatus()
	assert.Equal(t, 2, status.StoppedWorkers)
	assert.False(t, status.Healthy)

	assert.ErrorIs(t, pool.dispatch(context.Background(), orderCreated("late")), errPoolStopped)
	assert.Eventually(t, func() bool { return bus.Subscribers("order.events") == 0 }, time.Second, 5*time.Millisecond)
}
