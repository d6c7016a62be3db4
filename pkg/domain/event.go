package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the detail type of a bus event.
type EventType string

const (
	EventTypeOrderCreated EventType = "OrderCreated"
)

// OrderCreatedSchemaVersion is the current version of the OrderCreated
// envelope. Consumers reject versions they do not know.
const OrderCreatedSchemaVersion = 1

// Event is the envelope published on the bus. Detail carries the full
// persisted order.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"detailType"`
	Source        string    `json:"source"`
	SchemaVersion int       `json:"schemaVersion"`
	Time          time.Time `json:"time"`
	Detail        Order     `json:"detail"`
}

// NewOrderCreatedEvent wraps an order in a current-version envelope.
func NewOrderCreatedEvent(source string, order *Order) Event {
	return Event{
		ID:            uuid.New().String(),
		Type:          EventTypeOrderCreated,
		Source:        source,
		SchemaVersion: OrderCreatedSchemaVersion,
		Time:          time.Now().UTC(),
		Detail:        *order,
	}
}

// Validate checks that a received envelope can be understood.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	switch e.Type {
	case EventTypeOrderCreated:
		if e.SchemaVersion != OrderCreatedSchemaVersion {
			return fmt.Errorf("unsupported %s schema version %d", e.Type, e.SchemaVersion)
		}
		if e.Detail.ID == "" {
			return fmt.Errorf("%s event %s has no order id", e.Type, e.ID)
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}
