// Package domain defines the order model shared by the workflow, the
// adapters and the API layer.
//
// It contains:
//   - Order and OrderItem, the persisted record
//   - WorkflowInput and WorkflowResult, the orchestrator's input and output
//   - the error taxonomy (ErrorKind and its sentinels)
//   - Event, the versioned OrderCreated envelope published on the bus
package domain
