package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/aescanero/costume-orders/pkg/domain"
)

// fakeStore returns scripted errors for the first writes, then succeeds.
type fakeStore struct {
	mu    sync.Mutex
	errs  []error
	delay time.Duration
	// ignoreCtx makes the delay a plain sleep, like a driver without
	// context support.
	ignoreCtx bool
	calls     int
	orders    map[string]domain.Order
	ids       []string
}

func newFakeStore(errs ...error) *fakeStore {
	return &fakeStore{errs: errs, orders: make(map[string]domain.Order)}
}

func (s *fakeStore) Put(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	s.calls++
	s.ids = append(s.ids, order.ID)
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	delay, ignoreCtx := s.delay, s.ignoreCtx
	s.mu.Unlock()

	if delay > 0 && ignoreCtx {
		time.Sleep(delay)
	} else if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = *order
	return nil
}

func (s *fakeStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakePublisher records events and fails when err is set.
type fakePublisher struct {
	mu     sync.Mutex
	err    error
	block  bool
	calls  int
	events []domain.Event
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, event domain.Event) error {
	p.mu.Lock()
	p.calls++
	block, err := p.block, p.err
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// slowPublisher sleeps without watching ctx.
type slowPublisher struct {
	delay time.Duration
}

func (p *slowPublisher) Publish(context.Context, string, domain.Event) error {
	time.Sleep(p.delay)
	return nil
}

type workflowRecord struct {
	status string
	stage  domain.Stage
	kind   domain.ErrorKind
}

// fakeMetrics keeps the last recorded values.
type fakeMetrics struct {
	mu              sync.Mutex
	workflows       []workflowRecord
	persistAttempts []int
	publishes       []string
}

func (m *fakeMetrics) RecordWorkflow(status string, stage domain.Stage, kind domain.ErrorKind, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows = append(m.workflows, workflowRecord{status, stage, kind})
}

func (m *fakeMetrics) RecordPersistAttempts(_ string, attempts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistAttempts = append(m.persistAttempts, attempts)
}

func (m *fakeMetrics) RecordPublish(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishes = append(m.publishes, outcome)
}

func (m *fakeMetrics) RecordEventConsumed(string, string) {}

func (m *fakeMetrics) RecordWorkerPoolStatus(int, int, int) {}
