// Package orchestrator implements the synchronous order creation workflow.
//
// The Manager runs one workflow execution per call:
//   - PersistStep assigns the order id and writes it with a bounded retry policy
//   - PublishStep emits the versioned OrderCreated event
//   - a state tracker enforces Start → Persisting → Publishing → Succeeded,
//     with Failed reachable from either step
//
// A single deadline bounds the whole execution. Failures are returned as
// domain.WorkflowResult values, never as Go errors.
package orchestrator
