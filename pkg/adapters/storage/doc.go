// Package storage provides order store implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization and optional TTL
//   - sqlite: embedded SQLite file (modernc.org/sqlite, no CGO)
//   - memory: In-memory for testing and local runs
//
// Every implementation wraps failures with domain.ErrTransientStore,
// domain.ErrPermanentStore or domain.ErrNotFound so the persist step can
// decide whether to retry.
package storage
