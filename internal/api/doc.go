// Package api implements the operator HTTP API and WebSocket event stream
// for the MQTT link.
//
// This package provides:
//   - status endpoints reporting link state, backoff delay and counters
//   - a paged view of the connection event journal
//   - a publish endpoint that hands messages to the link
//   - a WebSocket hub relaying lifecycle events as they happen
//
// # Threading
//
// HTTP handlers never touch the publisher directly. A publish request is
// queued on a channel and the host loop serves it with Drain, so the link is
// only ever driven from one goroutine.
//
// # Security
//
// When a JWT secret is configured, every endpoint except /health requires a
// bearer token. Viewers may read; only operators may publish.
package api
