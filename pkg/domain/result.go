package domain

// WorkflowResult is the single outcome of one workflow execution.
// Exactly one of Order and Failure is set.
type WorkflowResult struct {
	Order   *Order
	Failure *Failure

	// Notified is false when the order was persisted but the OrderCreated
	// event could not be delivered under the best-effort publish policy.
	Notified bool
}

// Success builds a successful result.
func Success(order *Order, notified bool) *WorkflowResult {
	return &WorkflowResult{Order: order, Notified: notified}
}

// Failed builds a failed result.
func Failed(stage Stage, kind ErrorKind, message string) *WorkflowResult {
	return &WorkflowResult{Failure: &Failure{Stage: stage, Kind: kind, Message: message}}
}

// Succeeded reports whether the workflow produced an order.
func (r *WorkflowResult) Succeeded() bool {
	return r.Failure == nil
}

// Err returns the failure as an error, or nil on success.
func (r *WorkflowResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}
