// Package workers implements the OrderCreated consumer pool.
//
// The pool subscribes once to the order topic and fans events out to a
// fixed number of worker goroutines that:
//   - Validate the versioned event envelope
//   - Hand the order to the registered notifiers (the websocket feed, for one)
//   - Record consumption metrics
//
// The bus handler waits for the worker's result, so a failed notification is
// left unacknowledged on buses that support redelivery.
//
// The health monitor tracks worker status and logs metrics.
package workers
