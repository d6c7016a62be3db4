// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams with consumer groups
//   - nats: NATS JetStream with durable consumers
//   - memory: In-memory for testing and single-process runs
//
// The codec subpackage encodes envelopes as JSON or MessagePack.
package events
