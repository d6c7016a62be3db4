package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/aescanero/costume-orders/pkg/ports"
	"go.uber.org/zap"
)

// Notifier receives every valid OrderCreated event.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// Pool manages a pool of worker goroutines
type Pool struct {
	size      int
	eventBus  ports.EventBus
	topic     string
	notifiers []Notifier
	metrics   ports.MetricsCollector
	logger    *zap.Logger
	health    *HealthMonitor

	jobs    chan job
	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

type job struct {
	event  domain.Event
	result chan error
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

var errPoolStopped = errors.New("worker pool stopped")

// NewPool creates a new worker pool
func NewPool(
	size int,
	eventBus ports.EventBus,
	topic string,
	notifiers []Notifier,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:      size,
		eventBus:  eventBus,
		topic:     topic,
		notifiers: notifiers,
		metrics:   metrics,
		logger:    logger,
		jobs:      make(chan job),
		workers:   make([]*worker, size),
		ctx:       ctx,
		cancel:    cancel,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start subscribes to the order topic and starts the workers
func (p *Pool) Start() error {
	p.logger.Info("starting worker pool",
		zap.Int("size", p.size),
		zap.String("topic", p.topic))

	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	if err := p.eventBus.Subscribe(p.ctx, p.topic, p.dispatch); err != nil {
		p.cancel()
		p.wg.Wait()
		return fmt.Errorf("failed to subscribe to %s: %w", p.topic, err)
	}

	p.health.Start()

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// dispatch is the bus handler. It blocks until a worker has processed the
// event so the bus sees the real outcome.
func (p *Pool) dispatch(ctx context.Context, event domain.Event) error {
	j := job{event: event, result: make(chan error, 1)}

	select {
	case p.jobs <- j:
	case <-p.ctx.Done():
		return errPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.result:
		return err
	case <-p.ctx.Done():
		return errPoolStopped
	}
}

// Health returns the pool health monitor
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

// Shutdown gracefully shuts down the worker pool
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Debug("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-ctx.Done():
			w.setStatus(WorkerStatusStopped)
			w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
			return
		case j := <-w.pool.jobs:
			j.result <- w.handle(ctx, j.event)
		}
	}
}

func (w *worker) setStatus(s WorkerStatus) {
	w.mu.Lock()
	w.status = s
	if s == WorkerStatusBusy {
		w.lastJob = time.Now()
	}
	w.mu.Unlock()
}

// handle validates an event and passes it to the notifiers. Invalid events
// are dropped without error so they are not redelivered.
func (w *worker) handle(ctx context.Context, event domain.Event) error {
	w.setStatus(WorkerStatusBusy)
	defer w.setStatus(WorkerStatusIdle)

	log := w.pool.logger.With(
		zap.String("worker_id", w.id),
		zap.String("event_id", event.ID))

	if err := event.Validate(); err != nil {
		log.Warn("discarding invalid event", zap.Error(err))
		w.pool.metrics.RecordEventConsumed(string(event.Type), "invalid")
		return nil
	}

	for _, n := range w.pool.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			log.Error("notifier failed",
				zap.String("order_id", event.Detail.ID),
				zap.Error(err))
			w.pool.metrics.RecordEventConsumed(string(event.Type), "failed")
			return err
		}
	}

	log.Info("order created notification processed",
		zap.String("order_id", event.Detail.ID),
		zap.Int("items", len(event.Detail.Items)),
		zap.String("source", event.Source))
	w.pool.metrics.RecordEventConsumed(string(event.Type), "processed")
	return nil
}
