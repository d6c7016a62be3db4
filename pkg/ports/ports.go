// Package ports defines the interfaces the workflow depends on.
// Adapters under pkg/adapters implement them.
package ports

import (
	"context"
	"time"

	"github.com/aescanero/costume-orders/pkg/domain"
)

// OrderWriter writes an order record. Errors wrap domain.ErrTransientStore
// or domain.ErrPermanentStore.
type OrderWriter interface {
	Put(ctx context.Context, order *domain.Order) error
}

// OrderReader reads an order record. A missing record yields an error
// wrapping domain.ErrNotFound.
type OrderReader interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
}

// OrderStore is the point read/write store for orders.
type OrderStore interface {
	OrderWriter
	OrderReader
}

// EventPublisher emits an event on a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
}

// EventHandler processes a received event. Returning an error leaves the
// event unacknowledged where the bus supports it.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus is a publisher that also supports subscriptions.
// Subscriptions end when the subscribe context is cancelled.
type EventBus interface {
	EventPublisher
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// MetricsCollector records workflow and consumer metrics.
type MetricsCollector interface {
	RecordWorkflow(status string, stage domain.Stage, kind domain.ErrorKind, duration time.Duration)
	RecordPersistAttempts(outcome string, attempts int)
	RecordPublish(outcome string)
	RecordEventConsumed(eventType string, status string)
	RecordWorkerPoolStatus(idle, busy, stopped int)
}
