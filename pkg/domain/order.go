package domain

import "fmt"

// OrderItem is a single line of an order.
type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Validate checks the item invariants: non-empty product and positive quantity.
func (i OrderItem) Validate() error {
	if i.ProductID == "" {
		return fmt.Errorf("%w: productId is required", ErrMalformedInput)
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("%w: quantity for %s must be greater than zero", ErrMalformedInput, i.ProductID)
	}
	return nil
}

// Order is the persisted record of a purchase request.
// The ID is assigned by the persist step and never changes afterwards.
type Order struct {
	ID    string      `json:"id"`
	Items []OrderItem `json:"items"`
}

// WorkflowInput is the caller-supplied payload before an ID is assigned.
type WorkflowInput struct {
	Items []OrderItem `json:"items"`
}

// Validate checks that the input can be turned into an Order.
func (in WorkflowInput) Validate() error {
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrMalformedInput)
	}
	for idx, item := range in.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", idx, err)
		}
	}
	return nil
}

// NewOrder assembles an order with the given id. Items are copied so the
// order does not alias the caller's slice.
func NewOrder(id string, in WorkflowInput) *Order {
	items := make([]OrderItem, len(in.Items))
	copy(items, in.Items)
	return &Order{ID: id, Items: items}
}
