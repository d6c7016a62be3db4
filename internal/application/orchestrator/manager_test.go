package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type managerOptions struct {
	deadline      time.Duration
	stepTimeout   time.Duration
	persistPolicy RetryPolicy
	publishPolicy PublishPolicy
}

func testPersistPolicy() RetryPolicy {
	p := DefaultPersistPolicy()
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 5 * time.Millisecond
	return p
}

func newTestManager(store *fakeStore, pub *fakePublisher, metrics *fakeMetrics, opts managerOptions) *Manager {
	if opts.deadline == 0 {
		opts.deadline = 2 * time.Second
	}
	if opts.persistPolicy.MaxAttempts == 0 {
		opts.persistPolicy = testPersistPolicy()
	}
	logger := zap.NewNop()
	persist := NewPersistStep(store, opts.persistPolicy, opts.stepTimeout, logger)
	publish := NewPublishStep(pub, "order.events", "test.orders", SingleAttempt(), logger)
	return NewManager(persist, publish, metrics, logger, opts.deadline, opts.publishPolicy)
}

func hatInput() domain.WorkflowInput {
	return domain.WorkflowInput{Items: []domain.OrderItem{{ProductID: "hat-01", Quantity: 2}}}
}

func transient(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = fmt.Errorf("%w: throttled", domain.ErrTransientStore)
	}
	return errs
}

func TestCreateOrder_HatScenario(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	metrics := &fakeMetrics{}
	m := newTestManager(store, pub, metrics, managerOptions{})

	result := m.CreateOrder(context.Background(), hatInput())

	require.True(t, result.Succeeded(), "unexpected failure: %v", result.Err())
	require.NotNil(t, result.Order)
	assert.NotEmpty(t, result.Order.ID)
	assert.Equal(t, []domain.OrderItem{{ProductID: "hat-01", Quantity: 2}}, result.Order.Items)
	assert.True(t, result.Notified)

	assert.Equal(t, 1, store.Calls())
	assert.Equal(t, *result.Order, store.orders[result.Order.ID])

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, domain.EventTypeOrderCreated, ev.Type)
	assert.Equal(t, domain.OrderCreatedSchemaVersion, ev.SchemaVersion)
	assert.Equal(t, "test.orders", ev.Source)
	assert.Equal(t, *result.Order, ev.Detail)

	assert.Equal(t, []workflowRecord{{status: "success"}}, metrics.workflows)
	assert.Equal(t, []string{"success"}, metrics.publishes)
}

func TestCreateOrder_ItemsCopiedFromInput(t *testing.T) {
	m := newTestManager(newFakeStore(), &fakePublisher{}, &fakeMetrics{}, managerOptions{})

	in := domain.WorkflowInput{Items: []domain.OrderItem{
		{ProductID: "hat-01", Quantity: 2},
		{ProductID: "eyepatch-02", Quantity: 1},
		{ProductID: "hook-05", Quantity: 3},
	}}
	result := m.CreateOrder(context.Background(), in)
	require.True(t, result.Succeeded())

	in.Items[0].Quantity = 99
	assert.Equal(t, 2, result.Order.Items[0].Quantity)
	assert.Equal(t, "hook-05", result.Order.Items[2].ProductID)
}

func TestCreateOrder_TransientThenSuccess(t *testing.T) {
	for n := 1; n <= 3; n++ {
		t.Run(fmt.Sprintf("succeeds on attempt %d", n), func(t *testing.T) {
			store := newFakeStore(transient(n - 1)...)
			pub := &fakePublisher{}
			metrics := &fakeMetrics{}
			m := newTestManager(store, pub, metrics, managerOptions{})

			result := m.CreateOrder(context.Background(), hatInput())

			require.True(t, result.Succeeded(), "unexpected failure: %v", result.Err())
			assert.Equal(t, n, store.Calls())
			assert.Equal(t, []int{n}, metrics.persistAttempts)
			assert.Equal(t, 1, pub.Calls())
		})
	}
}

func TestCreateOrder_SameIDAcrossRetries(t *testing.T) {
	store := newFakeStore(transient(2)...)
	m := newTestManager(store, &fakePublisher{}, &fakeMetrics{}, managerOptions{})

	result := m.CreateOrder(context.Background(), hatInput())
	require.True(t, result.Succeeded())

	require.Len(t, store.ids, 3)
	for _, id := range store.ids {
		assert.Equal(t, result.Order.ID, id)
	}
}

func TestCreateOrder_TransientExhausted(t *testing.T) {
	store := newFakeStore(transient(10)...)
	pub := &fakePublisher{}
	metrics := &fakeMetrics{}
	m := newTestManager(store, pub, metrics, managerOptions{})

	result := m.CreateOrder(context.Background(), hatInput())

	require.False(t, result.Succeeded())
	assert.Nil(t, result.Order)
	assert.Equal(t, domain.StagePersist, result.Failure.Stage)
	assert.Equal(t, domain.KindTransientStore, result.Failure.Kind)
	assert.ErrorIs(t, result.Err(), domain.ErrTransientStore)
	assert.NotContains(t, result.Failure.Message, "3")

	assert.Equal(t, 3, store.Calls())
	assert.Zero(t, pub.Calls())
	assert.Empty(t, metrics.publishes)
	assert.Equal(t, []workflowRecord{{"failed", domain.StagePersist, domain.KindTransientStore}}, metrics.workflows)
}

func TestCreateOrder_PermanentErrorNotRetried(t *testing.T) {
	store := newFakeStore(fmt.Errorf("%w: validation rejected", domain.ErrPermanentStore))
	pub := &fakePublisher{}
	m := newTestManager(store, pub, &fakeMetrics{}, managerOptions{})

	result := m.CreateOrder(context.Background(), hatInput())

	require.False(t, result.Succeeded())
	assert.Equal(t, domain.StagePersist, result.Failure.Stage)
	assert.Equal(t, domain.KindPermanentStore, result.Failure.Kind)
	assert.Equal(t, 1, store.Calls())
	assert.Zero(t, pub.Calls())
}

func TestCreateOrder_UnclassifiedErrorIsPermanent(t *testing.T) {
	store := newFakeStore(errors.New("access denied"))
	m := newTestManager(store, &fakePublisher{}, &fakeMetrics{}, managerOptions{})

	result := m.CreateOrder(context.Background(), hatInput())

	require.False(t, result.Succeeded())
	assert.Equal(t, domain.KindPermanentStore, result.Failure.Kind)
	assert.Equal(t, 1, store.Calls())
}

func TestCreateOrder_MalformedInput(t *testing.T) {
	tests := []struct {
		name string
		in   domain.WorkflowInput
	}{
		{"no items", domain.WorkflowInput{}},
		{"empty product", domain.WorkflowInput{Items: []domain.OrderItem{{Quantity: 1}}}},
		{"zero quantity", domain.WorkflowInput{Items: []domain.OrderItem{{ProductID: "hat-01"}}}},
		{"negative quantity", domain.WorkflowInput{Items: []domain.OrderItem{
			{ProductID: "hat-01", Quantity: 1},
			{ProductID: "hook-05", Quantity: -2},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			pub := &fakePublisher{}
			metrics := &fakeMetrics{}
			m := newTestManager(store, pub, metrics, managerOptions{})

			result := m.CreateOrder(context.Background(), tt.in)

			require.False(t, result.Succeeded())
			assert.Equal(t, domain.StagePersist, result.Failure.Stage)
			assert.Equal(t, domain.KindMalformedInput, result.Failure.Kind)
			assert.NotEmpty(t, result.Failure.Message)
			assert.Zero(t, store.Calls())
			assert.Zero(t, pub.Calls())
			assert.Empty(t, metrics.persistAttempts)
		})
	}
}

func TestCreateOrder_PublishFailureBestEffort(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{err: fmt.Errorf("%w: bus down", domain.ErrDelivery)}
	metrics := &fakeMetrics{}
	m := newTestManager(store, pub, metrics, managerOptions{})

	result := m.CreateOrder(context.Background(), hatInput())

	require.True(t, result.Succeeded())
	assert.False(t, result.Notified)
	assert.Equal(t, store.orders[result.Order.ID], *result.Order)
	assert.Equal(t, 1, pub.Calls())
	assert.Equal(t, []string{"failed"}, metrics.publishes)
	assert.Equal(t, []workflowRecord{{status: "success"}}, metrics.workflows)
}

func TestCreateOrder_PublishFailureRequired(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{err: errors.New("bus down")}
	m := newTestManager(store, pub, &fakeMetrics{}, managerOptions{publishPolicy: PublishRequired})

	result := m.CreateOrder(context.Background(), hatInput())

	require.False(t, result.Succeeded())
	assert.Equal(t, domain.StagePublish, result.Failure.Stage)
	assert.Equal(t, domain.KindPublishDelivery, result.Failure.Kind)
	assert.ErrorIs(t, result.Err(), domain.ErrDelivery)
	assert.Len(t, store.orders, 1)
}

func TestCreateOrder_DeadlineDuringSlowWrite(t *testing.T) {
	store := newFakeStore()
	store.delay = time.Second
	pub := &fakePublisher{}
	m := newTestManager(store, pub, &fakeMetrics{}, managerOptions{deadline: 50 * time.Millisecond})

	start := time.Now()
	result := m.CreateOrder(context.Background(), hatInput())

	require.False(t, result.Succeeded())
	assert.True(t, result.Failure.Timeout())
	assert.Equal(t, domain.StagePersist, result.Failure.Stage)
	assert.ErrorIs(t, result.Err(), domain.ErrDeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Zero(t, pub.Calls())
}

func TestCreateOrder_DeadlineWithStoreIgnoringContext(t *testing.T) {
	store := newFakeStore()
	store.delay = time.Second
	store.ignoreCtx = true
	pub := &fakePublisher{}
	m := newTestManager(store, pub, &fakeMetrics{}, managerOptions{deadline: 50 * time.Millisecond})

	start := time.Now()
	result := m.CreateOrder(context.Background(), hatInput())

	require.False(t, result.Succeeded())
	assert.Equal(t, domain.KindDeadlineExceeded, result.Failure.Kind)
	assert.Equal(t, domain.StagePersist, result.Failure.Stage)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Zero(t, pub.Calls())
}

func TestCreateOrder_DeadlineWithPublisherIgnoringContext(t *testing.T) {
	store := newFakeStore()
	pub := &slowPublisher{delay: time.Second}
	logger := zap.NewNop()
	m := NewManager(
		NewPersistStep(store, testPersistPolicy(), 0, logger),
		NewPublishStep(pub, "order.events", "test.orders", SingleAttempt(), logger),
		&fakeMetrics{}, logger, 50*time.Millisecond, PublishBestEffort)

	start := time.Now()
	result := m.CreateOrder(context.Background(), hatInput())

	require.False(t, result.Succeeded())
	assert.Equal(t, domain.KindDeadlineExceeded, result.Failure.Kind)
	assert.Equal(t, domain.StagePublish, result.Failure.Stage)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestCreateOrder_DeadlineDuringBackoff(t *testing.T) {
	store := newFakeStore(transient(10)...)
	pub := &fakePublisher{}
	policy := DefaultPersistPolicy()
	policy.InitialBackoff = time.Second
	m := newTestManager(store, pub, &fakeMetrics{}, managerOptions{
		deadline:      50 * time.Millisecond,
		persistPolicy: policy,
	})

	start := time.Now()
	result := m.CreateOrder(context.Background(), hatInput())

	require.False(t, result.Succeeded())
	assert.Equal(t, domain.KindDeadlineExceeded, result.Failure.Kind)
	assert.Equal(t, domain.StagePersist, result.Failure.Stage)
	assert.Equal(t, 1, store.Calls())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Zero(t, pub.Calls())
}

func TestCreateOrder_PersistStepTimeout(t *testing.T) {
	store := newFakeStore()
	store.delay = time.Second
	m := newTestManager(store, &fakePublisher{}, &fakeMetrics{}, managerOptions{
		deadline:    5 * time.Second,
		stepTimeout: 30 * time.Millisecond,
	})

	result := m.CreateOrder(context.Background(), hatInput())

	require.False(t, result.Succeeded())
	assert.Equal(t, domain.KindDeadlineExceeded, result.Failure.Kind)
	assert.Equal(t, domain.StagePersist, result.Failure.Stage)
}

func TestCreateOrder_DeadlineDuringPublish(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{block: true}
	m := newTestManager(store, pub, &fakeMetrics{}, managerOptions{deadline: 50 * time.Millisecond})

	result := m.CreateOrder(context.Background(), hatInput())

	require.False(t, result.Succeeded())
	assert.Equal(t, domain.KindDeadlineExceeded, result.Failure.Kind)
	assert.Equal(t, domain.StagePublish, result.Failure.Stage)
	assert.Len(t, store.orders, 1)
}

func TestCreateOrder_CallerCancelled(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	m := newTestManager(store, pub, &fakeMetrics{}, managerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := m.CreateOrder(ctx, hatInput())

	require.False(t, result.Succeeded())
	assert.Equal(t, domain.KindDeadlineExceeded, result.Failure.Kind)
	assert.Zero(t, store.Calls())
	assert.Zero(t, pub.Calls())
}

func TestCreateOrder_ExecutionsAreIndependent(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	m := newTestManager(store, pub, &fakeMetrics{}, managerOptions{})

	const n = 20
	results := make(chan *domain.WorkflowResult, n)
	for i := 0; i < n; i++ {
		go func() { results <- m.CreateOrder(context.Background(), hatInput()) }()
	}

	ids := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		r := <-results
		require.True(t, r.Succeeded())
		ids[r.Order.ID] = struct{}{}
	}
	assert.Len(t, ids, n)
	assert.Equal(t, n, pub.Calls())
}
