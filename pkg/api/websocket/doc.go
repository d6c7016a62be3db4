// Package websocket streams OrderCreated events to browser clients.
//
// Clients connect to /api/v1/events/ws, optionally with ?productId=<id> to
// receive only orders containing that product. The handler is fed by the
// event consumer pool, so it only sees events that passed validation.
package websocket
