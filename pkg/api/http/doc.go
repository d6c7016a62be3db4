// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Order creation through the synchronous workflow (POST /api/v1/orders)
//   - Order lookup straight from the store (GET /api/v1/orders/:id)
//   - The live OrderCreated feed over WebSocket
//   - Health checks
//   - Prometheus metrics
package http
